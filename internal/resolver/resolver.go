// Package resolver maps raw provider accounts to stable local identities.
//
// A provider hands out a fresh remote account id on every re-authentication,
// so local identity is keyed on a fingerprint derived from fields that
// survive re-enrollment instead.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sprout-dev/sprout/internal/core"
)

// Store is the subset of the storage layer the resolver needs.
type Store interface {
	AccountByFingerprint(ctx context.Context, fingerprint string) (*core.Account, error)
	InsertAccount(ctx context.Context, a core.Account) error
}

// Resolver resolves raw accounts to local account ids, creating accounts on
// first sight. Resolve is idempotent: equivalent raw accounts always map to
// the same local id.
type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Fingerprint derives the stable identity institution:type:last_four.
// Every component must be present; an empty one makes the identity ambiguous.
func Fingerprint(raw core.RawAccount) (string, error) {
	for name, v := range map[string]string{
		"institution_id": raw.InstitutionID,
		"account_type":   raw.AccountType,
		"last_four":      raw.LastFour,
	} {
		if v == "" {
			return "", core.Errorf(core.KindValidation, "resolver.Fingerprint",
				"account %q: missing %s", raw.RemoteID, name)
		}
	}
	return fmt.Sprintf("%s:%s:%s", raw.InstitutionID, raw.AccountType, raw.LastFour), nil
}

// Resolve returns the local account id for raw, creating a new account row
// with a fresh id when the fingerprint is unseen.
func (r *Resolver) Resolve(ctx context.Context, raw core.RawAccount) (string, error) {
	fingerprint, err := Fingerprint(raw)
	if err != nil {
		return "", err
	}

	existing, err := r.store.AccountByFingerprint(ctx, fingerprint)
	if err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	account := core.Account{
		ID:            uuid.NewString(),
		Fingerprint:   fingerprint,
		InstitutionID: raw.InstitutionID,
		AccountType:   raw.AccountType,
		LastFour:      raw.LastFour,
		DisplayName:   raw.DisplayName,
	}
	if err := r.store.InsertAccount(ctx, account); err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}

	slog.InfoContext(ctx, "resolved new account",
		"account_id", account.ID,
		"institution", raw.InstitutionID,
		"last_four", raw.LastFour)
	return account.ID, nil
}
