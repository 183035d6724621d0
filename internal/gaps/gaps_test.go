package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprout-dev/sprout/internal/core"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := core.Day(y, m, d)
	return &t
}

func TestComputeBackfillAndForwardGaps(t *testing.T) {
	ranges, err := Compute(Input{
		WindowStart: datePtr(2024, 1, 1),
		Earliest:    core.Day(2024, 2, 1),
		Latest:      core.Day(2024, 2, 10),
		HasData:     true,
		Yesterday:   core.Day(2024, 2, 15),
	})
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	assert.Equal(t, core.Day(2024, 1, 1), ranges[0].Start)
	assert.Equal(t, core.Day(2024, 1, 31), ranges[0].End, "backfill must stop short of stored earliest")

	assert.Equal(t, core.Day(2024, 2, 10), ranges[1].Start, "forward gap re-fetches stored latest inclusively")
	assert.Equal(t, core.Day(2024, 2, 15), ranges[1].End)
}

func TestComputeNoStoredData(t *testing.T) {
	ranges, err := Compute(Input{
		WindowStart: datePtr(2024, 6, 1),
		Yesterday:   core.Day(2024, 6, 10),
	})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, core.Day(2024, 6, 1), ranges[0].Start)
	assert.Equal(t, core.Day(2024, 6, 10), ranges[0].End)
}

func TestComputeNoStoredDataUsesDefaultStart(t *testing.T) {
	ranges, err := Compute(Input{
		DefaultStart: core.Day(2024, 1, 1),
		Yesterday:    core.Day(2024, 3, 1),
	})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, core.Day(2024, 1, 1), ranges[0].Start)
}

func TestComputeAmbiguousStartFails(t *testing.T) {
	_, err := Compute(Input{Yesterday: core.Day(2024, 3, 1)})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestComputeUpToDateEmitsNothing(t *testing.T) {
	ranges, err := Compute(Input{
		Earliest:  core.Day(2024, 1, 1),
		Latest:    core.Day(2024, 2, 15),
		HasData:   true,
		Yesterday: core.Day(2024, 2, 15),
	})
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestComputeForwardGapOnly(t *testing.T) {
	ranges, err := Compute(Input{
		Earliest:  core.Day(2024, 1, 1),
		Latest:    core.Day(2024, 2, 10),
		HasData:   true,
		Yesterday: core.Day(2024, 2, 15),
	})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, core.Day(2024, 2, 10), ranges[0].Start)
	assert.Equal(t, core.Day(2024, 2, 15), ranges[0].End)
}

func TestComputeWindowStartInsideStoredRange(t *testing.T) {
	ranges, err := Compute(Input{
		WindowStart: datePtr(2024, 2, 5),
		Earliest:    core.Day(2024, 2, 1),
		Latest:      core.Day(2024, 2, 10),
		HasData:     true,
		Yesterday:   core.Day(2024, 2, 15),
	})
	require.NoError(t, err)
	require.Len(t, ranges, 1, "no backfill when window start is already covered")
	assert.Equal(t, core.Day(2024, 2, 10), ranges[0].Start)
}

func TestComputeFullBypassesGapMath(t *testing.T) {
	ranges, err := Compute(Input{
		WindowStart: datePtr(2024, 1, 1),
		Earliest:    core.Day(2024, 1, 1),
		Latest:      core.Day(2024, 2, 14),
		HasData:     true,
		Yesterday:   core.Day(2024, 2, 15),
		Full:        true,
	})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, core.Day(2024, 1, 1), ranges[0].Start)
	assert.Equal(t, core.Day(2024, 2, 15), ranges[0].End)
}

func TestComputeStartAfterYesterdayEmitsNothing(t *testing.T) {
	ranges, err := Compute(Input{
		WindowStart: datePtr(2024, 3, 1),
		Yesterday:   core.Day(2024, 2, 15),
	})
	require.NoError(t, err)
	assert.Empty(t, ranges)
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: core.Day(2024, 1, 10), End: core.Day(2024, 1, 20)}
	assert.True(t, r.Contains(core.Day(2024, 1, 10)))
	assert.True(t, r.Contains(core.Day(2024, 1, 20)))
	assert.False(t, r.Contains(core.Day(2024, 1, 9)))
	assert.False(t, r.Contains(core.Day(2024, 1, 21)))
}
