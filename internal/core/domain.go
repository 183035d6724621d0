// Package core holds the domain types shared across the sync engine.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the calendar-date layout used in storage and on the wire.
const DateFormat = "2006-01-02"

// Account is a locally resolved bank account. One row exists per distinct
// fingerprint no matter how many re-authentications produced it.
type Account struct {
	ID            string
	Fingerprint   string
	InstitutionID string
	AccountType   string
	LastFour      string
	DisplayName   string
}

// RawAccount is an account record as returned by the bank provider, already
// validated and typed at the fetch boundary. RemoteID changes on every
// re-authentication and must never be used as local identity.
type RawAccount struct {
	RemoteID      string
	InstitutionID string
	AccountType   string
	LastFour      string
	DisplayName   string
	Status        string
	Currency      string
}

// Transaction is a single bank transaction. ID is supplied by the remote
// source and is globally stable; it is never regenerated locally.
type Transaction struct {
	ID               string
	AccountID        string
	Amount           decimal.Decimal // negative = outflow
	Date             time.Time       // calendar date, midnight UTC
	Description      string
	Status           string
	Type             string
	RunningBalance   *decimal.Decimal
	InferredCategory *string
	Confidence       *float64
}

// Categorized reports whether the transaction has an inferred category.
func (t Transaction) Categorized() bool {
	return t.InferredCategory != nil
}

// SyncWindow is the date window a single run covers. End is always
// "yesterday" relative to run time, never the current incomplete day.
type SyncWindow struct {
	Start time.Time
	End   time.Time
}

// Assignment is a category with the confidence the categorizer reported.
type Assignment struct {
	Category   string
	Confidence float64
}

// CategorizationResult maps transaction ids to their assigned categories.
type CategorizationResult map[string]Assignment

// Day builds a calendar date at midnight UTC.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates t to a calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	return Day(t.Year(), t.Month(), t.Day())
}

// Yesterday returns the sync ceiling for a run started at now.
func Yesterday(now time.Time) time.Time {
	return DateOnly(now).AddDate(0, 0, -1)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}
