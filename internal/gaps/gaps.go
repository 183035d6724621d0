// Package gaps computes the minimal set of date ranges a sync run must
// fetch, given what is already stored for an account.
package gaps

import (
	"fmt"
	"time"

	"github.com/sprout-dev/sprout/internal/core"
)

// Range is an inclusive calendar-date range.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start.Format(core.DateFormat), r.End.Format(core.DateFormat))
}

// Contains reports whether d falls inside the range.
func (r Range) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Input describes the window to cover and what the store already holds.
type Input struct {
	// WindowStart is the explicit start cutoff, nil when not requested.
	WindowStart *time.Time
	// Earliest and Latest bound the stored data; only valid when HasData.
	Earliest time.Time
	Latest   time.Time
	HasData  bool
	// Yesterday is the sync ceiling.
	Yesterday time.Time
	// DefaultStart stands in for WindowStart when the account has no stored
	// data; zero when not configured.
	DefaultStart time.Time
	// Full bypasses gap computation and requests the whole window.
	Full bool
}

// Compute returns the ranges to fetch so that together with the stored
// range they cover [window start, yesterday]. At most two ranges come back:
// a backfill before the stored data and a forward gap after it.
//
// The forward gap starts at the stored latest date itself, not the day
// after: the provider may update the status of last-known transactions
// (pending to posted), and insert-time dedup absorbs the re-fetch.
func Compute(in Input) ([]Range, error) {
	if in.Full || !in.HasData {
		start, err := resolveStart(in)
		if err != nil {
			return nil, err
		}
		if start.After(in.Yesterday) {
			return nil, nil
		}
		return []Range{{Start: start, End: in.Yesterday}}, nil
	}

	var ranges []Range
	if in.WindowStart != nil && in.WindowStart.Before(in.Earliest) {
		ranges = append(ranges, Range{Start: *in.WindowStart, End: in.Earliest.AddDate(0, 0, -1)})
	}
	if in.Latest.Before(in.Yesterday) {
		ranges = append(ranges, Range{Start: in.Latest, End: in.Yesterday})
	}
	return ranges, nil
}

func resolveStart(in Input) (time.Time, error) {
	if in.WindowStart != nil {
		return *in.WindowStart, nil
	}
	if !in.DefaultStart.IsZero() {
		return in.DefaultStart, nil
	}
	return time.Time{}, core.Errorf(core.KindValidation, "gaps.Compute",
		"no window start: pass an explicit from date or configure a default start date")
}
