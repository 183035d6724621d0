package teller

import (
	"github.com/shopspring/decimal"

	"github.com/sprout-dev/sprout/internal/core"
)

// apiAccount mirrors the Teller account payload.
type apiAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	Institution struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"institution"`
	LastFour string `json:"last_four"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
}

// apiTransaction mirrors the Teller transaction payload. Amounts arrive as
// decimal strings.
type apiTransaction struct {
	ID             string  `json:"id"`
	AccountID      string  `json:"account_id"`
	Amount         string  `json:"amount"`
	Date           string  `json:"date"`
	Description    string  `json:"description"`
	Status         string  `json:"status"`
	Type           string  `json:"type"`
	RunningBalance *string `json:"running_balance"`
}

func (a apiAccount) toRawAccount() (core.RawAccount, error) {
	if a.ID == "" {
		return core.RawAccount{}, core.Errorf(core.KindValidation, "teller.account", "missing account id")
	}

	// Subtype (checking, savings, credit_card) is the meaningful type for
	// identity and categorization context; fall back to the coarse type.
	accountType := a.Subtype
	if accountType == "" {
		accountType = a.Type
	}

	return core.RawAccount{
		RemoteID:      a.ID,
		InstitutionID: a.Institution.ID,
		AccountType:   accountType,
		LastFour:      a.LastFour,
		DisplayName:   a.Name,
		Status:        a.Status,
		Currency:      a.Currency,
	}, nil
}

func (t apiTransaction) toTransaction() (core.Transaction, error) {
	op := "teller.transaction"
	if t.ID == "" {
		return core.Transaction{}, core.Errorf(core.KindValidation, op, "missing transaction id")
	}

	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return core.Transaction{}, core.Errorf(core.KindValidation, op,
			"transaction %s: bad amount %q: %v", t.ID, t.Amount, err)
	}
	date, err := core.ParseDate(t.Date)
	if err != nil {
		return core.Transaction{}, core.Errorf(core.KindValidation, op,
			"transaction %s: bad date %q: %v", t.ID, t.Date, err)
	}

	tx := core.Transaction{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Amount:      amount,
		Date:        date,
		Description: t.Description,
		Status:      t.Status,
		Type:        t.Type,
	}
	if t.RunningBalance != nil {
		balance, err := decimal.NewFromString(*t.RunningBalance)
		if err != nil {
			return core.Transaction{}, core.Errorf(core.KindValidation, op,
				"transaction %s: bad running balance %q: %v", t.ID, *t.RunningBalance, err)
		}
		tx.RunningBalance = &balance
	}
	return tx, nil
}
