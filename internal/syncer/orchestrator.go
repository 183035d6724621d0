// Package syncer orchestrates a sync run: per account it resolves identity,
// computes the date gaps to fetch, persists with dedup, applies manual
// overrides and categorizes the remainder.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sprout-dev/sprout/internal/categorize"
	"github.com/sprout-dev/sprout/internal/core"
	"github.com/sprout-dev/sprout/internal/gaps"
)

// Phase names the steps of the per-account state machine.
type Phase string

const (
	PhaseResolving    Phase = "resolving"
	PhaseGapCalc      Phase = "gap_calc"
	PhaseFetching     Phase = "fetching"
	PhasePersisting   Phase = "persisting"
	PhaseOverrides    Phase = "override_apply"
	PhaseCategorizing Phase = "categorizing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// BankClient fetches raw accounts and transactions from the provider.
type BankClient interface {
	Accounts(ctx context.Context, token string) ([]core.RawAccount, error)
	Transactions(ctx context.Context, token, accountRef string, from time.Time) ([]core.Transaction, error)
}

// AccountResolver maps raw accounts to stable local ids.
type AccountResolver interface {
	Resolve(ctx context.Context, raw core.RawAccount) (string, error)
}

// Batcher categorizes transactions in batches.
type Batcher interface {
	Run(ctx context.Context, txs []core.Transaction, batchSize int) (core.CategorizationResult, categorize.Stats, error)
}

// Store is the subset of the storage layer the orchestrator drives.
type Store interface {
	SaveTransaction(ctx context.Context, t core.Transaction) (bool, error)
	DateRange(ctx context.Context, accountID string) (min, max time.Time, ok bool, err error)
	Uncategorized(ctx context.Context, accountID string) ([]core.Transaction, error)
	ApplyCategory(ctx context.Context, txID, category string, confidence float64) error
	ClearCategories(ctx context.Context, accountID string) (int64, error)
}

// Options configure one sync run.
type Options struct {
	// Full bypasses gap computation and re-fetches the whole window.
	Full bool
	// FromDate is the explicit window start, nil for earliest-known.
	FromDate *time.Time
	// BatchSize is the categorization batch size.
	BatchSize int
	// Recategorize clears stored categories per account before the
	// categorization phase.
	Recategorize bool
	// DefaultStart stands in for FromDate on accounts with no stored data.
	DefaultStart time.Time
}

// AccountSummary reports what happened to one account.
type AccountSummary struct {
	AccountID   string
	DisplayName string
	Phase       Phase
	FailedAt    Phase
	Fetched     int
	Inserted    int
	Duplicates  int
	Overridden  int
	Categorized int
	Fallback    int
	Abandoned   int
	Err         error
}

// RunSummary reports a whole run across tokens and accounts.
type RunSummary struct {
	Accounts      []AccountSummary
	ValidTokens   int
	InvalidTokens []string
}

// Orchestrator wires the sync collaborators together. Accounts are processed
// strictly in sequence so categorization backoff on one account never races
// another account's API usage.
type Orchestrator struct {
	store     Store
	bank      BankClient
	resolver  AccountResolver
	batcher   Batcher
	overrides map[string]string
	opts      Options
	now       func() time.Time
}

// New builds an Orchestrator. overrides maps transaction ids to pinned
// categories and may be nil.
func New(store Store, bank BankClient, resolver AccountResolver, batcher Batcher, overrides map[string]string, opts Options) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	return &Orchestrator{
		store:     store,
		bank:      bank,
		resolver:  resolver,
		batcher:   batcher,
		overrides: overrides,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock fixes the run clock (tests).
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run syncs every account reachable through the given tokens. Per-account
// failures are isolated: a fatal error on one account never prevents the
// others from syncing. Tokens failing authentication are skipped and
// reported; any other account-listing failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, tokens []string) (*RunSummary, error) {
	summary := &RunSummary{}

	for _, token := range tokens {
		accounts, err := o.bank.Accounts(ctx, token)
		if err != nil {
			if core.IsAuth(err) {
				slog.WarnContext(ctx, "skipping invalid or expired token",
					"token", truncateToken(token))
				summary.InvalidTokens = append(summary.InvalidTokens, truncateToken(token))
				continue
			}
			return summary, fmt.Errorf("list accounts: %w", err)
		}
		summary.ValidTokens++

		for _, raw := range accounts {
			acct := o.syncAccount(ctx, token, raw)
			summary.Accounts = append(summary.Accounts, acct)
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
		}
	}
	return summary, nil
}

func (o *Orchestrator) syncAccount(ctx context.Context, token string, raw core.RawAccount) AccountSummary {
	s := AccountSummary{DisplayName: raw.DisplayName, Phase: PhaseResolving}
	fail := func(at Phase, err error) AccountSummary {
		s.Phase = PhaseFailed
		s.FailedAt = at
		s.Err = err
		slog.ErrorContext(ctx, "account sync failed",
			"account", raw.DisplayName, "phase", string(at), "error", err)
		return s
	}

	accountID, err := o.resolver.Resolve(ctx, raw)
	if err != nil {
		return fail(PhaseResolving, err)
	}
	s.AccountID = accountID

	s.Phase = PhaseGapCalc
	yesterday := core.Yesterday(o.now())
	earliest, latest, hasData, err := o.store.DateRange(ctx, accountID)
	if err != nil {
		return fail(PhaseGapCalc, err)
	}
	ranges, err := gaps.Compute(gaps.Input{
		WindowStart:  o.opts.FromDate,
		Earliest:     earliest,
		Latest:       latest,
		HasData:      hasData,
		Yesterday:    yesterday,
		DefaultStart: o.opts.DefaultStart,
		Full:         o.opts.Full,
	})
	if err != nil {
		return fail(PhaseGapCalc, err)
	}

	s.Phase = PhaseFetching
	var fetched []core.Transaction
	for _, rng := range ranges {
		txs, err := o.bank.Transactions(ctx, token, raw.RemoteID, rng.Start)
		if err != nil {
			return fail(PhaseFetching, err)
		}
		for _, t := range txs {
			// The provider only bounds the fetch from below; clip to the
			// requested range here.
			if !rng.Contains(t.Date) {
				continue
			}
			t.AccountID = accountID
			fetched = append(fetched, t)
		}
	}
	s.Fetched = len(fetched)

	s.Phase = PhasePersisting
	for _, t := range fetched {
		inserted, err := o.store.SaveTransaction(ctx, t)
		if err != nil {
			return fail(PhasePersisting, err)
		}
		if inserted {
			s.Inserted++
		} else {
			s.Duplicates++
		}
	}

	// Recategorize wipes stored categories before overrides re-apply, so
	// manual pins survive the reset and still precede the batcher.
	if o.opts.Recategorize {
		if _, err := o.store.ClearCategories(ctx, accountID); err != nil {
			return fail(PhaseCategorizing, err)
		}
	}

	s.Phase = PhaseOverrides
	if err := o.applyOverrides(ctx, accountID, &s); err != nil {
		return fail(PhaseOverrides, err)
	}

	s.Phase = PhaseCategorizing
	uncategorized, err := o.store.Uncategorized(ctx, accountID)
	if err != nil {
		return fail(PhaseCategorizing, err)
	}
	result, stats, err := o.batcher.Run(ctx, uncategorized, o.opts.BatchSize)
	if err != nil {
		return fail(PhaseCategorizing, err)
	}
	for id, a := range result {
		if err := o.store.ApplyCategory(ctx, id, a.Category, a.Confidence); err != nil {
			return fail(PhaseCategorizing, err)
		}
	}
	s.Categorized = stats.Categorized
	s.Fallback = stats.Fallback
	s.Abandoned = stats.Abandoned

	s.Phase = PhaseDone
	slog.InfoContext(ctx, "account synced",
		"account_id", accountID,
		"fetched", s.Fetched,
		"inserted", s.Inserted,
		"duplicates", s.Duplicates,
		"overridden", s.Overridden,
		"categorized", s.Categorized,
		"fallback", s.Fallback,
		"abandoned", s.Abandoned)
	return s
}

// applyOverrides pins manually configured categories with full confidence,
// removing those transactions from the uncategorized set before the batcher
// runs.
func (o *Orchestrator) applyOverrides(ctx context.Context, accountID string, s *AccountSummary) error {
	if len(o.overrides) == 0 {
		return nil
	}

	uncategorized, err := o.store.Uncategorized(ctx, accountID)
	if err != nil {
		return err
	}
	for _, t := range uncategorized {
		category, ok := o.overrides[t.ID]
		if !ok {
			continue
		}
		if err := o.store.ApplyCategory(ctx, t.ID, category, 1.0); err != nil {
			return err
		}
		s.Overridden++
	}
	return nil
}

func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}
