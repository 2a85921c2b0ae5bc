package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
)

// Tracker accumulates per-entity slot time consumed within the current local
// day and adjusts job budgets before submission. It is not safe for
// concurrent use; the coordinator serializes refresh cycles around it.
type Tracker struct {
	loc         *time.Location
	elapsed     map[string]float64 // entity -> seconds consumed today
	trackedDate time.Time          // local midnight; zero until first Update
	lastUpdate  time.Time
}

// NewTracker creates a Tracker that performs day-rollover accounting in the
// given location.
func NewTracker(loc *time.Location) *Tracker {
	return &Tracker{
		loc:     loc,
		elapsed: make(map[string]float64),
	}
}

// TrackedDate returns the local midnight of the day being accounted, or the
// zero time before the first Update.
func (t *Tracker) TrackedDate() time.Time {
	return t.trackedDate
}

// Elapsed returns the seconds consumed today by an entity.
func (t *Tracker) Elapsed(entity string) float64 {
	return t.elapsed[entity]
}

// SetElapsed overrides the consumed seconds for an entity.
func (t *Tracker) SetElapsed(entity string, seconds float64) {
	t.elapsed[entity] = seconds
}

// Snapshot returns a copy of the per-entity counters.
func (t *Tracker) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.elapsed))
	for k, v := range t.elapsed {
		out[k] = v
	}
	return out
}

// Restore seeds the tracker from persisted state. Values are applied only
// when the persisted day matches now's local date; stale days are silently
// ignored.
func (t *Tracker) Restore(now, persistedDay time.Time, elapsed map[string]float64) bool {
	// persistedDay encodes a calendar date, not an instant, so compare its
	// own date components rather than converting it into our location
	py, pm, pd := persistedDay.Date()
	ty, tm, td := now.In(t.loc).Date()
	if py != ty || pm != tm || pd != td {
		return false
	}
	t.trackedDate = types.DayStart(now, t.loc)
	for k, v := range elapsed {
		t.elapsed[k] = v
	}
	return true
}

// Update rolls the tracked date and accumulates slot time that completed
// since the previous update. The counters reset exactly once when the local
// date changes; the reset cycle performs no accumulation because there is no
// valid previous window yet. Otherwise every slot of the previous cycle's
// assignments whose end falls within (lastUpdate, now] adds one slot
// duration to its entity's counter. Sentinel entities are never tracked.
// Returns true when a day rollover reset the counters.
func (t *Tracker) Update(now time.Time, prev []types.Assignment, slot time.Duration) bool {
	if t.trackedDate.IsZero() || !types.SameDate(now, t.trackedDate, t.loc) {
		t.elapsed = make(map[string]float64)
		t.trackedDate = types.DayStart(now, t.loc)
		t.lastUpdate = now
		return true
	}

	if prev == nil || t.lastUpdate.IsZero() {
		t.lastUpdate = now
		return false
	}

	windowStart := t.lastUpdate
	for _, a := range prev {
		if types.IsSentinel(a.Entity) {
			continue
		}
		for _, slotStart := range a.Slots {
			slotEnd := slotStart.Add(slot)
			// inclusive-right, exclusive-left so a boundary slot is
			// counted by exactly one window
			if slotEnd.After(windowStart) && !slotEnd.After(now) {
				t.elapsed[a.Entity] += slot.Seconds()
			}
		}
	}

	t.lastUpdate = now
	return false
}

// AdjustBoxes applies the elapsed-budget policy to candidate boxes. Forced
// boxes and sentinel entities pass through untouched so their power draw is
// always modeled. For everything else on the tracked date the remaining
// budget is the maximum duration minus today's elapsed time minus the
// preserved active run; an exhausted box with no run to preserve is dropped.
// Boxes with a preserved run have their start advanced past the last
// preserved slot, and the remaining budget is capped at what is left of the
// box's own window.
func (t *Tracker) AdjustBoxes(ctx context.Context, boxes []types.PowerBox, runs map[string][]time.Time, slot time.Duration) []types.PowerBox {
	adjusted := make([]types.PowerBox, 0, len(boxes))

	for _, box := range boxes {
		if types.IsSentinel(box.Entity) || box.Force {
			adjusted = append(adjusted, box)
			continue
		}
		if !types.DayStart(box.Start, t.loc).Equal(t.trackedDate) {
			// budget only applies to today's boxes
			adjusted = append(adjusted, box)
			continue
		}

		elapsed := t.elapsed[box.Entity]
		preserved := runs[box.Entity]
		preservedSeconds := float64(len(preserved)) * slot.Seconds()

		remaining := float64(box.MaximumDuration.Seconds()) - elapsed - preservedSeconds
		if remaining < 0 {
			remaining = 0
		}

		if remaining <= 0 && len(preserved) == 0 {
			log.Ctx(ctx).DebugContext(ctx, "dropping budget-exhausted box",
				slog.String("entity", box.Entity),
				slog.Float64("elapsed", elapsed))
			continue
		}

		if len(preserved) > 0 {
			last := preserved[0]
			for _, s := range preserved[1:] {
				if s.After(last) {
					last = s
				}
			}
			box.Start = last.Add(slot)
		}

		// A job cannot run longer than what is left of its window, and a
		// budget exceeding the window causes incorrect power scaling in
		// the optimizer.
		window := box.Finish.Sub(box.Start).Seconds()
		if window < 0 {
			window = 0
		}
		if remaining > window {
			remaining = window
		}

		box.MaximumDuration = types.DurationFromSeconds(int(remaining))
		adjusted = append(adjusted, box)
	}

	return adjusted
}
