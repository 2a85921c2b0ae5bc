package types

import (
	"fmt"
	"time"
)

// ParseInstant parses an ISO-8601 timestamp with an explicit offset,
// tolerating fractional seconds. The result is normalized to UTC so that
// instants parsed from differently-formatted strings ("Z" vs "+00:00",
// trailing sub-second zeros) compare and hash identically.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// SameDate reports whether two instants fall on the same calendar date in
// the given location.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DayStart truncates an instant to midnight of its calendar day in the given
// location.
func DayStart(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
