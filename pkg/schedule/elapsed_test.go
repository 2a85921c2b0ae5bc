package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slotDur = 5 * time.Minute

func assignment(entity string, slots ...time.Time) types.Assignment {
	return types.Assignment{Entity: entity, Slots: slots}
}

func TestTrackerFirstUpdateResets(t *testing.T) {
	tr := NewTracker(time.UTC)
	now := monday.Add(10 * time.Hour)

	reset := tr.Update(now, nil, slotDur)
	assert.True(t, reset)
	assert.Equal(t, monday, tr.TrackedDate())
	assert.Empty(t, tr.Snapshot())
}

func TestTrackerAccumulation(t *testing.T) {
	tr := NewTracker(time.UTC)
	start := monday.Add(10 * time.Hour)
	tr.Update(start, nil, slotDur)

	// three slots: ends at 10:05, 10:10, 10:15
	prev := []types.Assignment{assignment("switch.pool_pump",
		start, start.Add(slotDur), start.Add(2*slotDur))}

	// window (10:00, 10:07]: only the 10:05 end falls inside
	tr.Update(start.Add(7*time.Minute), prev, slotDur)
	assert.Equal(t, 300.0, tr.Elapsed("switch.pool_pump"))

	// window (10:07, 10:15]: two more ends, no double count of the first
	tr.Update(start.Add(15*time.Minute), prev, slotDur)
	assert.Equal(t, 900.0, tr.Elapsed("switch.pool_pump"))

	// window past all slots: nothing more accumulates
	tr.Update(start.Add(30*time.Minute), prev, slotDur)
	assert.Equal(t, 900.0, tr.Elapsed("switch.pool_pump"))
}

func TestTrackerBoundarySlots(t *testing.T) {
	tr := NewTracker(time.UTC)
	start := monday.Add(10 * time.Hour)
	tr.Update(start, nil, slotDur)

	prev := []types.Assignment{assignment("switch.a", start.Add(-slotDur), start)}

	// slot ending exactly at the window start is excluded (exclusive left),
	// slot ending exactly at now is included (inclusive right)
	tr.Update(start.Add(slotDur), prev, slotDur)
	assert.Equal(t, 300.0, tr.Elapsed("switch.a"))
}

func TestTrackerSentinelIgnored(t *testing.T) {
	tr := NewTracker(time.UTC)
	start := monday.Add(10 * time.Hour)
	tr.Update(start, nil, slotDur)

	prev := []types.Assignment{assignment(types.SolarEntity, start)}
	tr.Update(start.Add(10*time.Minute), prev, slotDur)
	assert.Empty(t, tr.Snapshot())
}

func TestTrackerDayRolloverResetsOnce(t *testing.T) {
	tr := NewTracker(time.UTC)
	day1 := monday.Add(23 * time.Hour)
	tr.Update(day1, nil, slotDur)
	tr.SetElapsed("switch.pool_pump", 1800)

	day2 := monday.AddDate(0, 0, 1).Add(30 * time.Minute)
	reset := tr.Update(day2, []types.Assignment{assignment("switch.pool_pump", day1)}, slotDur)
	assert.True(t, reset, "counters reset on the first refresh of the new day")
	assert.Empty(t, tr.Snapshot(), "stale values never carry across the rollover")
	assert.Equal(t, monday.AddDate(0, 0, 1), tr.TrackedDate())

	// further refreshes within the same day do not reset again
	tr.SetElapsed("switch.pool_pump", 600)
	reset = tr.Update(day2.Add(10*time.Minute), nil, slotDur)
	assert.False(t, reset)
	assert.Equal(t, 600.0, tr.Elapsed("switch.pool_pump"))
}

func TestTrackerRestore(t *testing.T) {
	now := monday.Add(8 * time.Hour)

	t.Run("same date applies", func(t *testing.T) {
		tr := NewTracker(time.UTC)
		ok := tr.Restore(now, monday, map[string]float64{"switch.a": 1200})
		assert.True(t, ok)
		assert.Equal(t, 1200.0, tr.Elapsed("switch.a"))

		// the following Update must not treat this as a rollover
		reset := tr.Update(now, nil, slotDur)
		assert.False(t, reset)
		assert.Equal(t, 1200.0, tr.Elapsed("switch.a"))
	})

	t.Run("stale date ignored", func(t *testing.T) {
		tr := NewTracker(time.UTC)
		ok := tr.Restore(now, monday.AddDate(0, 0, -1), map[string]float64{"switch.a": 1200})
		assert.False(t, ok)
		assert.Empty(t, tr.Snapshot())
	})
}

func adjustableBox(entity string, start, finish time.Time, max time.Duration) types.PowerBox {
	return types.PowerBox{
		Entity:          entity,
		Start:           start,
		Finish:          finish,
		MaximumDuration: types.Duration(max),
	}
}

func TestAdjustBoxesDeductsElapsed(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	now := monday.Add(10 * time.Hour)
	tr.Update(now, nil, slotDur)
	tr.SetElapsed("switch.pool_pump", 3600)

	box := adjustableBox("switch.pool_pump", monday.Add(9*time.Hour), monday.Add(17*time.Hour), 3*time.Hour)
	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, nil, slotDur)
	require.Len(t, out, 1)
	assert.Equal(t, 7200, out[0].MaximumDuration.Seconds(), "3h budget minus 1h elapsed")
}

func TestAdjustBoxesExhaustedDropped(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	now := monday.Add(14 * time.Hour)
	tr.Update(now, nil, slotDur)
	tr.SetElapsed("switch.pool_pump", 3*3600)

	box := adjustableBox("switch.pool_pump", monday.Add(9*time.Hour), monday.Add(17*time.Hour), 3*time.Hour)
	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, nil, slotDur)
	assert.Empty(t, out, "budget exhausted with no active run: hard drop")
}

func TestAdjustBoxesForcedNeverDropped(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	now := monday.Add(12 * time.Hour)
	tr.Update(now, nil, slotDur)
	tr.SetElapsed("sensor.base_load", 86400)

	box := adjustableBox("sensor.base_load", monday, monday.AddDate(0, 0, 1), 24*time.Hour)
	box.Force = true
	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, nil, slotDur)
	require.Len(t, out, 1)
	assert.Equal(t, box, out[0], "forced boxes bypass adjustment entirely")
}

func TestAdjustBoxesSentinelBypass(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	tr.Update(monday.Add(12*time.Hour), nil, slotDur)

	box := adjustableBox(types.SolarEntity, monday.Add(10*time.Hour), monday.Add(11*time.Hour), time.Hour)
	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, nil, slotDur)
	require.Len(t, out, 1)
	assert.Equal(t, box, out[0])
}

func TestAdjustBoxesOtherDayUntouched(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	tr.Update(monday.Add(22*time.Hour), nil, slotDur)
	tr.SetElapsed("switch.pool_pump", 7200)

	tomorrow := monday.AddDate(0, 0, 1)
	box := adjustableBox("switch.pool_pump", tomorrow.Add(9*time.Hour), tomorrow.Add(17*time.Hour), 3*time.Hour)
	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, nil, slotDur)
	require.Len(t, out, 1)
	assert.Equal(t, 3*time.Hour, out[0].MaximumDuration.Std(), "elapsed only deducts from today's boxes")
}

func TestAdjustBoxesPreservedRun(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	now := monday.Add(10 * time.Hour)
	tr.Update(now, nil, slotDur)
	tr.SetElapsed("switch.pool_pump", 600)

	runs := map[string][]time.Time{
		"switch.pool_pump": {now, now.Add(slotDur), now.Add(2 * slotDur)},
	}
	box := adjustableBox("switch.pool_pump", monday.Add(9*time.Hour), monday.Add(17*time.Hour), 3*time.Hour)

	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, runs, slotDur)
	require.Len(t, out, 1)
	assert.Equal(t, now.Add(3*slotDur), out[0].Start, "start advanced past the last preserved slot")
	// 3h - 600s elapsed - 900s preserved
	assert.Equal(t, 10800-600-900, out[0].MaximumDuration.Seconds())
}

func TestAdjustBoxesExhaustedButPreservedKept(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	now := monday.Add(10 * time.Hour)
	tr.Update(now, nil, slotDur)
	tr.SetElapsed("switch.pool_pump", 3*3600)

	runs := map[string][]time.Time{"switch.pool_pump": {now}}
	box := adjustableBox("switch.pool_pump", monday.Add(9*time.Hour), monday.Add(17*time.Hour), 3*time.Hour)

	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, runs, slotDur)
	require.Len(t, out, 1, "an active run is never discontinuously cancelled")
	assert.Equal(t, 0, out[0].MaximumDuration.Seconds())
}

func TestAdjustBoxesCappedAtWindow(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(time.UTC)
	now := monday.Add(16 * time.Hour)
	tr.Update(now, nil, slotDur)

	// a 3h budget in a 1h remaining window is capped at the window
	box := adjustableBox("switch.pool_pump", monday.Add(16*time.Hour), monday.Add(17*time.Hour), 3*time.Hour)
	out := tr.AdjustBoxes(ctx, []types.PowerBox{box}, nil, slotDur)
	require.Len(t, out, 1)
	assert.Equal(t, 3600, out[0].MaximumDuration.Seconds())
}
