package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies collaborator failures so callers branch on a stable
// discriminant instead of inspecting message text.
type ErrorKind int

const (
	// KindTransient marks retryable network failures whose internal retries
	// were exhausted; fatal for the affected account only.
	KindTransient ErrorKind = iota + 1
	// KindRateLimited marks provider rate limiting, eligible for the
	// batcher's bounded cooldown-and-retry.
	KindRateLimited
	// KindAuth marks expired or invalid credentials; the caller should
	// re-authenticate.
	KindAuth
	// KindValidation marks ambiguous or malformed input (missing fingerprint
	// components, unresolvable sync window).
	KindValidation
	// KindFatal marks everything else.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a tagged error carrying the failing operation and its kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the innermost tagged error, or KindFatal for
// untagged errors, or zero for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// IsRateLimited reports whether err is tagged KindRateLimited.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsAuth reports whether err is tagged KindAuth.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsValidation reports whether err is tagged KindValidation.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
