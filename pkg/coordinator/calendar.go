package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
)

// Event is one contiguous scheduled run, suitable for a calendar view.
type Event struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
}

// friendlyName converts an entity ID like "switch.pool_pump" to "Pool Pump".
func friendlyName(entityID string) string {
	if _, object, ok := strings.Cut(entityID, "."); ok {
		entityID = object
	}
	words := strings.Split(strings.ReplaceAll(entityID, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// BuildEvents converts the schedule's assignments into calendar events,
// grouping contiguous slots into single events sorted by start time. A new
// group starts when the gap between consecutive slots exceeds the slot
// duration.
func BuildEvents(data *types.ScheduleResponse, slot time.Duration) []Event {
	if data == nil {
		return nil
	}

	var events []Event
	for _, a := range data.Assignments {
		if types.IsSentinel(a.Entity) || len(a.Slots) == 0 {
			continue
		}

		slots := make([]time.Time, len(a.Slots))
		copy(slots, a.Slots)
		sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

		summary := friendlyName(a.Entity)
		description := fmt.Sprintf("Run time: %.2fh, Cost: $%.2f, Benefit: $%.2f",
			a.RunTimeSeconds/3600, a.EnergyCost, a.EnergyBenefit)

		groupStart := slots[0]
		groupEnd := slots[0].Add(slot)
		for _, s := range slots[1:] {
			if !s.After(groupEnd) {
				groupEnd = s.Add(slot)
				continue
			}
			events = append(events, Event{Start: groupStart, End: groupEnd, Summary: summary, Description: description})
			groupStart = s
			groupEnd = s.Add(slot)
		}
		events = append(events, Event{Start: groupStart, End: groupEnd, Summary: summary, Description: description})
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events
}

// EventsBetween returns the events overlapping [start, end).
func EventsBetween(data *types.ScheduleResponse, slot time.Duration, start, end time.Time) []Event {
	var out []Event
	for _, ev := range BuildEvents(data, slot) {
		if ev.End.After(start) && ev.Start.Before(end) {
			out = append(out, ev)
		}
	}
	return out
}

// NextEvent returns the first event still in progress or upcoming at now, or
// nil when the schedule holds none.
func NextEvent(data *types.ScheduleResponse, slot time.Duration, now time.Time) *Event {
	for _, ev := range BuildEvents(data, slot) {
		if ev.End.After(now) {
			return &ev
		}
	}
	return nil
}
