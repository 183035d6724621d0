// Package retry provides a small fixed-cooldown retry policy. The sleep is
// injectable so tests can run with a fake clock.
package retry

import (
	"context"
	"time"
)

// Policy describes how many attempts an operation gets and how long to
// pause between them.
type Policy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// SleepFunc pauses for d or returns early with the context's error.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping p.Cooldown between
// attempts. Only errors for which retryable returns true are retried;
// any other error, or the final attempt's error, is returned as is.
func Do(ctx context.Context, p Policy, sleep SleepFunc, retryable func(error) bool, fn func() error) error {
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt == p.MaxAttempts {
			return err
		}
		if serr := sleep(ctx, p.Cooldown); serr != nil {
			return serr
		}
	}
	return err
}
