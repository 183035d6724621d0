package categorize

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sprout-dev/sprout/internal/core"
	"github.com/sprout-dev/sprout/internal/retry"
)

// Cooldown is the fixed pause before the single rate-limit retry.
const Cooldown = 60 * time.Second

// Service categorizes one batch of transactions. Failures must be tagged so
// rate limiting is distinguishable from other errors.
type Service interface {
	Categorize(ctx context.Context, txs []core.Transaction) (core.CategorizationResult, error)
}

// Stats counts what happened to the transactions of one Run call.
type Stats struct {
	Categorized int
	Fallback    int
	Abandoned   int
}

// Batcher partitions transactions into fixed-size batches and applies the
// retry/fallback policy around a Service:
//
//   - success merges the batch's assignments into the result;
//   - a rate-limit error pauses for the cooldown and retries the batch
//     exactly once, abandoning it on a second failure so earlier progress
//     is preserved and the rows stay eligible for the next run;
//   - any other error assigns the fallback category to the whole batch so
//     those rows are not re-attempted.
type Batcher struct {
	svc      Service
	policy   retry.Policy
	sleep    retry.SleepFunc
	fallback core.Assignment
}

// Option customizes a Batcher.
type Option func(*Batcher)

// WithPolicy overrides the retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(b *Batcher) { b.policy = p }
}

// WithSleep injects a fake clock for tests.
func WithSleep(s retry.SleepFunc) Option {
	return func(b *Batcher) { b.sleep = s }
}

// WithFallback overrides the fallback assignment.
func WithFallback(a core.Assignment) Option {
	return func(b *Batcher) { b.fallback = a }
}

// NewBatcher builds a Batcher with the default one-retry/60s policy.
func NewBatcher(svc Service, opts ...Option) *Batcher {
	b := &Batcher{
		svc:      svc,
		policy:   retry.Policy{MaxAttempts: 2, Cooldown: Cooldown},
		sleep:    retry.Sleep,
		fallback: core.Assignment{Category: "general", Confidence: 0.5},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run categorizes txs in consecutive batches of at most batchSize,
// preserving input order. Every input transaction ends up either present in
// the result with confidence in [0, 1] or absent (abandoned after rate-limit
// exhaustion). The error is non-nil only on context cancellation.
func (b *Batcher) Run(ctx context.Context, txs []core.Transaction, batchSize int) (core.CategorizationResult, Stats, error) {
	result := core.CategorizationResult{}
	var stats Stats
	if len(txs) == 0 {
		return result, stats, nil
	}
	if batchSize < 1 {
		batchSize = 1
	}

	total := (len(txs) + batchSize - 1) / batchSize
	slog.InfoContext(ctx, "categorizing transactions",
		"transactions", len(txs), "batches", total, "batch_size", batchSize)

	for start := 0; start < len(txs); start += batchSize {
		end := min(start+batchSize, len(txs))
		batch := txs[start:end]
		batchNum := start/batchSize + 1

		var got core.CategorizationResult
		err := retry.Do(ctx, b.policy, b.sleep, core.IsRateLimited, func() error {
			r, err := b.svc.Categorize(ctx, batch)
			if err != nil {
				return err
			}
			got = r
			return nil
		})

		switch {
		case err == nil:
			for id, a := range got {
				result[id] = a
			}
			stats.Categorized += len(got)
			if len(got) < len(batch) {
				slog.WarnContext(ctx, "batch partially categorized",
					"batch", batchNum, "categorized", len(got), "size", len(batch))
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return result, stats, err
		case core.IsRateLimited(err):
			// Retry exhausted; leave the batch out of the result so the
			// next run picks it up again.
			stats.Abandoned += len(batch)
			slog.WarnContext(ctx, "batch abandoned after rate-limit retry",
				"batch", batchNum, "size", len(batch))
		default:
			for _, t := range batch {
				result[t.ID] = b.fallback
			}
			stats.Fallback += len(batch)
			slog.WarnContext(ctx, "batch failed, fallback category applied",
				"batch", batchNum, "size", len(batch), "error", err)
		}

		if ctx.Err() != nil {
			return result, stats, ctx.Err()
		}
	}

	slog.InfoContext(ctx, "categorization complete",
		"categorized", stats.Categorized, "fallback", stats.Fallback, "abandoned", stats.Abandoned)
	return result, stats, nil
}
