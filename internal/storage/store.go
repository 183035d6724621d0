// Package storage persists accounts and transactions in SQLite and enforces
// the engine's dedup guarantees: primary-key uniqueness for transactions and
// fingerprint uniqueness for accounts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sprout-dev/sprout/internal/core"
)

// Store is the SQLite-backed deduplicating store. It assumes one interactive
// invocation at a time; each operation is its own atomic unit so partial
// progress survives a mid-run failure.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AccountByFingerprint returns the account with the given fingerprint, or
// nil when none exists.
func (s *Store) AccountByFingerprint(ctx context.Context, fingerprint string) (*core.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, institution_id, account_type, last_four, display_name
		FROM accounts WHERE fingerprint = ?`, fingerprint)

	var a core.Account
	err := row.Scan(&a.ID, &a.Fingerprint, &a.InstitutionID, &a.AccountType, &a.LastFour, &a.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account by fingerprint: %w", err)
	}
	return &a, nil
}

// InsertAccount creates a new account row. The fingerprint UNIQUE constraint
// rejects a second row for the same identity.
func (s *Store) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, fingerprint, institution_id, account_type, last_four, display_name)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Fingerprint, a.InstitutionID, a.AccountType, a.LastFour, a.DisplayName)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	slog.InfoContext(ctx, "account created",
		"account_id", a.ID,
		"fingerprint", a.Fingerprint,
		"display_name", a.DisplayName)
	return nil
}

// Accounts lists all stored accounts ordered by institution and name.
func (s *Store) Accounts(ctx context.Context) ([]core.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, institution_id, account_type, last_four, display_name
		FROM accounts ORDER BY institution_id, display_name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.InstitutionID, &a.AccountType, &a.LastFour, &a.DisplayName); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SaveTransaction inserts t and reports whether a new row was created.
// A row with the same id already present makes this a no-op returning false;
// the existing row is never mutated. INSERT OR IGNORE keeps the existence
// check and the insert a single atomic statement.
func (s *Store) SaveTransaction(ctx context.Context, t core.Transaction) (bool, error) {
	var balance any
	if t.RunningBalance != nil {
		balance = t.RunningBalance.String()
	}
	var category, confidence any
	if t.InferredCategory != nil {
		category = *t.InferredCategory
	}
	if t.Confidence != nil {
		confidence = *t.Confidence
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, account_id, amount, date, description, status, type, running_balance, inferred_category, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.Amount.String(), t.Date.Format(core.DateFormat),
		t.Description, t.Status, t.Type, balance, category, confidence)
	if err != nil {
		return false, fmt.Errorf("save transaction %s: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save transaction %s: rows affected: %w", t.ID, err)
	}
	return n > 0, nil
}

// DateRange returns the min and max transaction dates stored for an account.
// ok is false when the account has no transactions.
func (s *Store) DateRange(ctx context.Context, accountID string) (min, max time.Time, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM transactions WHERE account_id = ?`, accountID)

	var minStr, maxStr sql.NullString
	if err := row.Scan(&minStr, &maxStr); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("date range for %s: %w", accountID, err)
	}
	if !minStr.Valid || !maxStr.Valid {
		return time.Time{}, time.Time{}, false, nil
	}

	min, err = core.ParseDate(minStr.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("date range for %s: parse min %q: %w", accountID, minStr.String, err)
	}
	max, err = core.ParseDate(maxStr.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("date range for %s: parse max %q: %w", accountID, maxStr.String, err)
	}
	return min, max, true, nil
}

// Uncategorized returns transactions without an inferred category, newest
// first. An empty accountID selects across all accounts.
func (s *Store) Uncategorized(ctx context.Context, accountID string) ([]core.Transaction, error) {
	query := `
		SELECT id, account_id, amount, date, description, status, type, running_balance, inferred_category, confidence
		FROM transactions WHERE inferred_category IS NULL`
	args := []any{}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY date DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("uncategorized transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ApplyCategory sets the inferred category and confidence for one
// transaction. An absent id is a no-op, not an error.
func (s *Store) ApplyCategory(ctx context.Context, txID, category string, confidence float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET inferred_category = ?, confidence = ? WHERE id = ?`,
		category, confidence, txID)
	if err != nil {
		return fmt.Errorf("apply category to %s: %w", txID, err)
	}
	return nil
}

// ClearCategories nulls inferred_category and confidence, scoped to one
// account or (with an empty accountID) to every transaction. Returns the
// number of rows reset.
func (s *Store) ClearCategories(ctx context.Context, accountID string) (int64, error) {
	query := `UPDATE transactions SET inferred_category = NULL, confidence = NULL`
	args := []any{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear categories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear categories: rows affected: %w", err)
	}

	slog.InfoContext(ctx, "categories cleared", "account_id", accountID, "rows", n)
	return n, nil
}

// ExportRow is a transaction joined with its account context for CSV export.
type ExportRow struct {
	Transaction core.Transaction
	AccountName string
	AccountType string
	LastFour    string
}

// ForExport returns every transaction with account details, newest first.
func (s *Store) ForExport(ctx context.Context) ([]ExportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.account_id, t.amount, t.date, t.description, t.status, t.type,
		       t.running_balance, t.inferred_category, t.confidence,
		       a.display_name, a.account_type, a.last_four
		FROM transactions t
		LEFT JOIN accounts a ON t.account_id = a.id
		ORDER BY t.date DESC, t.id`)
	if err != nil {
		return nil, fmt.Errorf("transactions for export: %w", err)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var r ExportRow
		var amount, date string
		var balance, category, name, acctType, lastFour sql.NullString
		var confidence sql.NullFloat64

		err := rows.Scan(&r.Transaction.ID, &r.Transaction.AccountID, &amount, &date,
			&r.Transaction.Description, &r.Transaction.Status, &r.Transaction.Type,
			&balance, &category, &confidence, &name, &acctType, &lastFour)
		if err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		if err := fillTransaction(&r.Transaction, amount, date, balance, category, confidence); err != nil {
			return nil, err
		}
		r.AccountName = name.String
		r.AccountType = acctType.String
		r.LastFour = lastFour.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var amount, date string
		var balance, category sql.NullString
		var confidence sql.NullFloat64

		err := rows.Scan(&t.ID, &t.AccountID, &amount, &date, &t.Description,
			&t.Status, &t.Type, &balance, &category, &confidence)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if err := fillTransaction(&t, amount, date, balance, category, confidence); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func fillTransaction(t *core.Transaction, amount, date string, balance, category sql.NullString, confidence sql.NullFloat64) error {
	var err error
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("transaction %s: parse amount %q: %w", t.ID, amount, err)
	}
	t.Date, err = core.ParseDate(date)
	if err != nil {
		return fmt.Errorf("transaction %s: parse date %q: %w", t.ID, date, err)
	}
	if balance.Valid {
		b, err := decimal.NewFromString(balance.String)
		if err != nil {
			return fmt.Errorf("transaction %s: parse balance %q: %w", t.ID, balance.String, err)
		}
		t.RunningBalance = &b
	}
	if category.Valid {
		c := category.String
		t.InferredCategory = &c
	}
	if confidence.Valid {
		f := confidence.Float64
		t.Confidence = &f
	}
	return nil
}
