package schedule

import (
	"sort"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
)

// ActiveRuns finds, for each real entity in the previous cycle's
// assignments, the slot containing now and the strictly-contiguous slots
// that follow it. The returned slot instants are the run that must survive
// re-optimization so an in-progress job is never interrupted. Entities with
// no slot containing now are absent from the result.
func ActiveRuns(assignments []types.Assignment, now time.Time, slot time.Duration) map[string][]time.Time {
	runs := make(map[string][]time.Time)

	for _, a := range assignments {
		if types.IsSentinel(a.Entity) || len(a.Slots) == 0 {
			continue
		}

		slots := make([]time.Time, len(a.Slots))
		copy(slots, a.Slots)
		sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

		activeIdx := -1
		for i, start := range slots {
			if !start.After(now) && now.Before(start.Add(slot)) {
				activeIdx = i
				break
			}
		}
		if activeIdx < 0 {
			continue
		}

		run := []time.Time{slots[activeIdx]}
		for i := activeIdx + 1; i < len(slots); i++ {
			if !slots[i].Equal(slots[i-1].Add(slot)) {
				break
			}
			run = append(run, slots[i])
		}
		runs[a.Entity] = run
	}

	return runs
}

// MergeAssignments splices preserved runs back into the optimizer's
// response. Preserved slots are prepended to the entity's returned slots and
// the run time is increased accordingly; entities the optimizer returned no
// assignment for get a new one holding only the preserved run.
func MergeAssignments(resp *types.ScheduleResponse, runs map[string][]time.Time, slot time.Duration) {
	if len(runs) == 0 {
		return
	}

	// deterministic order when creating missing assignments
	entities := make([]string, 0, len(runs))
	for entity := range runs {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		preserved := runs[entity]
		preservedSeconds := float64(len(preserved)) * slot.Seconds()

		if target := resp.AssignmentFor(entity); target != nil {
			merged := make([]time.Time, 0, len(preserved)+len(target.Slots))
			merged = append(merged, preserved...)
			merged = append(merged, target.Slots...)
			target.Slots = merged
			target.RunTimeSeconds += preservedSeconds
			continue
		}

		resp.Assignments = append(resp.Assignments, types.Assignment{
			Entity:         entity,
			Slots:          append([]time.Time(nil), preserved...),
			RunTimeSeconds: preservedSeconds,
		})
	}
}
