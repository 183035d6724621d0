package syncer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprout-dev/sprout/internal/categorize"
	"github.com/sprout-dev/sprout/internal/core"
	"github.com/sprout-dev/sprout/internal/resolver"
	"github.com/sprout-dev/sprout/internal/storage"
)

type fakeBank struct {
	accounts    map[string][]core.RawAccount  // token -> accounts
	txs         map[string][]core.Transaction // remote account id -> transactions
	accountsErr map[string]error              // token -> error
	txErr       map[string]error              // remote account id -> error
	fromDates   map[string][]time.Time        // remote account id -> from args seen
}

func newFakeBank() *fakeBank {
	return &fakeBank{
		accounts:    map[string][]core.RawAccount{},
		txs:         map[string][]core.Transaction{},
		accountsErr: map[string]error{},
		txErr:       map[string]error{},
		fromDates:   map[string][]time.Time{},
	}
}

func (b *fakeBank) Accounts(_ context.Context, token string) ([]core.RawAccount, error) {
	if err := b.accountsErr[token]; err != nil {
		return nil, err
	}
	return b.accounts[token], nil
}

func (b *fakeBank) Transactions(_ context.Context, _, accountRef string, from time.Time) ([]core.Transaction, error) {
	b.fromDates[accountRef] = append(b.fromDates[accountRef], from)
	if err := b.txErr[accountRef]; err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, t := range b.txs[accountRef] {
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// fakeBatcher assigns a fixed category to everything it sees.
type fakeBatcher struct {
	seen [][]core.Transaction
}

func (f *fakeBatcher) Run(_ context.Context, txs []core.Transaction, _ int) (core.CategorizationResult, categorize.Stats, error) {
	f.seen = append(f.seen, txs)
	result := core.CategorizationResult{}
	for _, t := range txs {
		result[t.ID] = core.Assignment{Category: "ai_pick", Confidence: 0.9}
	}
	return result, categorize.Stats{Categorized: len(txs)}, nil
}

func rawAccount(remoteID string) core.RawAccount {
	return core.RawAccount{
		RemoteID:      remoteID,
		InstitutionID: "chase",
		AccountType:   "checking",
		LastFour:      "1234",
		DisplayName:   "Everyday Checking",
	}
}

func bankTx(id, remoteAccount string, date time.Time) core.Transaction {
	return core.Transaction{
		ID:          id,
		AccountID:   remoteAccount,
		Amount:      decimal.NewFromInt(-20),
		Date:        date,
		Description: "MERCHANT " + id,
		Status:      "posted",
		Type:        "card_payment",
	}
}

type fixture struct {
	store   *storage.Store
	bank    *fakeBank
	batcher *fakeBatcher
}

func newOrchestrator(t *testing.T, f *fixture, opts Options) *Orchestrator {
	return newOrchestratorWithOverrides(t, f, opts, nil)
}

func newOrchestratorWithOverrides(t *testing.T, f *fixture, opts Options, overrides map[string]string) *Orchestrator {
	t.Helper()
	if f.store == nil {
		s, err := storage.Open(filepath.Join(t.TempDir(), "sprout.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		f.store = s
	}
	if f.bank == nil {
		f.bank = newFakeBank()
	}
	if f.batcher == nil {
		f.batcher = &fakeBatcher{}
	}
	o := New(f.store, f.bank, resolver.New(f.store), f.batcher, overrides, opts)
	// Fixed run clock: yesterday is 2024-03-15.
	return o.WithClock(func() time.Time { return core.Day(2024, 3, 16) })
}

func TestRunIdempotentResync(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{rawAccount("remote_1")}
	f.bank.txs["remote_1"] = []core.Transaction{
		bankTx("txn_1", "remote_1", core.Day(2024, 3, 10)),
		bankTx("txn_2", "remote_1", core.Day(2024, 3, 12)),
	}
	from := core.Day(2024, 3, 1)
	o := newOrchestrator(t, f, Options{FromDate: &from})

	first, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, first.Accounts, 1)
	assert.Equal(t, PhaseDone, first.Accounts[0].Phase)
	assert.Equal(t, 2, first.Accounts[0].Inserted)
	assert.Equal(t, 0, first.Accounts[0].Duplicates)

	second, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, second.Accounts, 1)
	assert.Equal(t, 0, second.Accounts[0].Inserted, "re-sync with no new remote data inserts nothing")
}

func TestRunResyncFetchesGapsOnly(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{rawAccount("remote_1")}
	f.bank.txs["remote_1"] = []core.Transaction{
		bankTx("txn_1", "remote_1", core.Day(2024, 3, 10)),
	}
	from := core.Day(2024, 3, 1)
	o := newOrchestrator(t, f, Options{FromDate: &from})

	_, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Equal(t, []time.Time{from}, f.bank.fromDates["remote_1"])

	// Second run: stored range is [03-10, 03-10], so one backfill fetch from
	// 03-01 and one forward fetch from the stored latest date itself.
	f.bank.fromDates["remote_1"] = nil
	_, err = o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{from, core.Day(2024, 3, 10)}, f.bank.fromDates["remote_1"])
}

func TestRunOverridePrecedence(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{rawAccount("remote_1")}
	f.bank.txs["remote_1"] = []core.Transaction{
		bankTx("txn_pinned", "remote_1", core.Day(2024, 3, 10)),
		bankTx("txn_free", "remote_1", core.Day(2024, 3, 11)),
	}
	from := core.Day(2024, 3, 1)
	o := newOrchestratorWithOverrides(t, f, Options{FromDate: &from},
		map[string]string{"txn_pinned": "dining"})

	summary, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, 1, summary.Accounts[0].Overridden)

	// The pinned transaction never reaches the batcher.
	require.Len(t, f.batcher.seen, 1)
	require.Len(t, f.batcher.seen[0], 1)
	assert.Equal(t, "txn_free", f.batcher.seen[0][0].ID)

	rows, err := f.store.ForExport(context.Background())
	require.NoError(t, err)
	byID := map[string]storage.ExportRow{}
	for _, r := range rows {
		byID[r.Transaction.ID] = r
	}
	require.NotNil(t, byID["txn_pinned"].Transaction.InferredCategory)
	assert.Equal(t, "dining", *byID["txn_pinned"].Transaction.InferredCategory)
	assert.Equal(t, 1.0, *byID["txn_pinned"].Transaction.Confidence)
	assert.Equal(t, "ai_pick", *byID["txn_free"].Transaction.InferredCategory)
}

func TestRunRecategorizeResetsAndReappliesOverrides(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{rawAccount("remote_1")}
	f.bank.txs["remote_1"] = []core.Transaction{
		bankTx("txn_pinned", "remote_1", core.Day(2024, 3, 10)),
		bankTx("txn_free", "remote_1", core.Day(2024, 3, 11)),
	}
	from := core.Day(2024, 3, 1)
	overrides := map[string]string{"txn_pinned": "dining"}

	o := newOrchestratorWithOverrides(t, f, Options{FromDate: &from}, overrides)
	_, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)

	// Recategorize run reuses the same store.
	o2 := newOrchestratorWithOverrides(t, f, Options{FromDate: &from, Recategorize: true}, overrides)
	summary, err := o2.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)

	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, 1, summary.Accounts[0].Overridden, "override re-applied after reset")
	assert.Equal(t, 1, summary.Accounts[0].Categorized, "only the free transaction re-categorized")

	rows, err := f.store.ForExport(context.Background())
	require.NoError(t, err)
	for _, r := range rows {
		require.NotNil(t, r.Transaction.InferredCategory, r.Transaction.ID)
	}
}

func TestRunPerAccountFailureIsolation(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{
		rawAccount("remote_bad"),
		{
			RemoteID:      "remote_good",
			InstitutionID: "ally",
			AccountType:   "savings",
			LastFour:      "9876",
			DisplayName:   "Savings",
		},
	}
	f.bank.txErr["remote_bad"] = core.Errorf(core.KindTransient, "teller", "retries exhausted")
	f.bank.txs["remote_good"] = []core.Transaction{
		bankTx("txn_1", "remote_good", core.Day(2024, 3, 10)),
	}
	from := core.Day(2024, 3, 1)
	o := newOrchestrator(t, f, Options{FromDate: &from})

	summary, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 2)

	assert.Equal(t, PhaseFailed, summary.Accounts[0].Phase)
	assert.Equal(t, PhaseFetching, summary.Accounts[0].FailedAt)
	assert.Error(t, summary.Accounts[0].Err)

	assert.Equal(t, PhaseDone, summary.Accounts[1].Phase, "one account's failure never blocks the next")
	assert.Equal(t, 1, summary.Accounts[1].Inserted)
}

func TestRunInvalidTokenSkipped(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accountsErr["token_dead_12345"] = core.Errorf(core.KindAuth, "teller", "status 401")
	f.bank.accounts["token_live"] = []core.RawAccount{rawAccount("remote_1")}
	f.bank.txs["remote_1"] = []core.Transaction{
		bankTx("txn_1", "remote_1", core.Day(2024, 3, 10)),
	}
	from := core.Day(2024, 3, 1)
	o := newOrchestrator(t, f, Options{FromDate: &from})

	summary, err := o.Run(context.Background(), []string{"token_dead_12345", "token_live"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ValidTokens)
	require.Len(t, summary.InvalidTokens, 1)
	assert.Equal(t, "token_dead_1...", summary.InvalidTokens[0])
	assert.Len(t, summary.Accounts, 1)
}

func TestRunAmbiguousIdentityFailsResolving(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	anonymous := rawAccount("remote_1")
	anonymous.LastFour = ""
	f.bank.accounts["token_a"] = []core.RawAccount{anonymous}
	from := core.Day(2024, 3, 1)
	o := newOrchestrator(t, f, Options{FromDate: &from})

	summary, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, PhaseFailed, summary.Accounts[0].Phase)
	assert.Equal(t, PhaseResolving, summary.Accounts[0].FailedAt)
	assert.True(t, core.IsValidation(summary.Accounts[0].Err))
}

func TestRunClipsFetchToWindowCeiling(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{rawAccount("remote_1")}
	f.bank.txs["remote_1"] = []core.Transaction{
		bankTx("txn_old", "remote_1", core.Day(2024, 3, 10)),
		// Today's possibly-incomplete transaction must never be persisted.
		bankTx("txn_today", "remote_1", core.Day(2024, 3, 16)),
	}
	from := core.Day(2024, 3, 1)
	o := newOrchestrator(t, f, Options{FromDate: &from})

	summary, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, 1, summary.Accounts[0].Fetched)
	assert.Equal(t, 1, summary.Accounts[0].Inserted)
}

func TestRunNoWindowStartAndNoDefaultFails(t *testing.T) {
	f := &fixture{bank: newFakeBank()}
	f.bank.accounts["token_a"] = []core.RawAccount{rawAccount("remote_1")}
	o := newOrchestrator(t, f, Options{})

	summary, err := o.Run(context.Background(), []string{"token_a"})
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 1)
	assert.Equal(t, PhaseFailed, summary.Accounts[0].Phase)
	assert.Equal(t, PhaseGapCalc, summary.Accounts[0].FailedAt)
	assert.True(t, core.IsValidation(summary.Accounts[0].Err))
}
