package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
)

// WeekdayIndex converts Go's Sunday-based weekday to the Monday=0 index used
// by recurrence rules.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// RuleMatches reports whether a calendar day matches a recurrence rule.
// Unknown frequencies never match.
func RuleMatches(day time.Time, r types.Recurrence) bool {
	wd := WeekdayIndex(day.Weekday())
	switch r.Frequency {
	case types.FrequencyDaily:
		return true
	case types.FrequencyWeekdays:
		return wd <= 4
	case types.FrequencyWeekends:
		return wd >= 5
	case types.FrequencyWeekly:
		return wd == r.DayOfWeek
	case types.FrequencyCustom:
		return slices.Contains(r.DaysOfWeek, wd)
	}
	return false
}

// parseClock parses an "HH:MM" local clock time into hour and minute.
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", s)
	}
	return hour, minute, nil
}

// dayWindow builds the absolute [start, end) window for a recurrence on a
// given calendar day. A window whose end is not after its start wraps past
// midnight into the following day.
func dayWindow(day time.Time, r types.Recurrence, loc *time.Location) (time.Time, time.Time, error) {
	sh, sm, err := parseClock(r.TimeWindowStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseClock(r.TimeWindowEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.In(loc).Date()
	start := time.Date(y, m, d, sh, sm, 0, 0, loc)
	end := time.Date(y, m, d, eh, em, 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// clip intersects [start, end) with [lo, hi). The result is empty when
// end <= start.
func clip(start, end, lo, hi time.Time) (time.Time, time.Time) {
	if start.Before(lo) {
		start = lo
	}
	if end.After(hi) {
		end = hi
	}
	return start, end
}

// eachHorizonDay calls fn for every calendar day from the horizon start's
// date to the horizon end's date inclusive, in the given location.
func eachHorizonDay(h types.Horizon, loc *time.Location, fn func(day time.Time)) {
	day := types.DayStart(h.Start, loc)
	last := types.DayStart(h.End, loc)
	for !day.After(last) {
		fn(day)
		day = day.AddDate(0, 0, 1)
	}
}
