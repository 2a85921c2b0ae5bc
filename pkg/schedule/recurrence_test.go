package schedule

import (
	"testing"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-06-03 is a Monday.
var monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func TestWeekdayIndex(t *testing.T) {
	assert.Equal(t, 0, WeekdayIndex(time.Monday))
	assert.Equal(t, 4, WeekdayIndex(time.Friday))
	assert.Equal(t, 5, WeekdayIndex(time.Saturday))
	assert.Equal(t, 6, WeekdayIndex(time.Sunday))
}

func TestRuleMatches(t *testing.T) {
	week := make([]time.Time, 7)
	for i := range week {
		week[i] = monday.AddDate(0, 0, i)
	}

	t.Run("daily", func(t *testing.T) {
		r := types.Recurrence{Frequency: types.FrequencyDaily}
		for _, day := range week {
			assert.True(t, RuleMatches(day, r))
		}
	})

	t.Run("weekdays", func(t *testing.T) {
		r := types.Recurrence{Frequency: types.FrequencyWeekdays}
		var matched int
		for _, day := range week {
			if RuleMatches(day, r) {
				matched++
			}
		}
		assert.Equal(t, 5, matched)
		assert.True(t, RuleMatches(week[0], r))  // Monday
		assert.False(t, RuleMatches(week[5], r)) // Saturday
	})

	t.Run("weekends", func(t *testing.T) {
		r := types.Recurrence{Frequency: types.FrequencyWeekends}
		var matched int
		for _, day := range week {
			if RuleMatches(day, r) {
				matched++
			}
		}
		assert.Equal(t, 2, matched)
		assert.True(t, RuleMatches(week[6], r)) // Sunday
	})

	t.Run("weekly matches exactly one day in seven", func(t *testing.T) {
		r := types.Recurrence{Frequency: types.FrequencyWeekly, DayOfWeek: 2}
		var matches []time.Time
		for _, day := range week {
			if RuleMatches(day, r) {
				matches = append(matches, day)
			}
		}
		require.Len(t, matches, 1)
		assert.Equal(t, time.Wednesday, matches[0].Weekday())
	})

	t.Run("custom", func(t *testing.T) {
		r := types.Recurrence{Frequency: types.FrequencyCustom, DaysOfWeek: []int{0, 6}}
		var matched int
		for _, day := range week {
			if RuleMatches(day, r) {
				matched++
			}
		}
		assert.Equal(t, 2, matched)
		assert.True(t, RuleMatches(week[0], r))
		assert.True(t, RuleMatches(week[6], r))
	})

	t.Run("unknown frequency fails closed", func(t *testing.T) {
		r := types.Recurrence{Frequency: "fortnightly"}
		for _, day := range week {
			assert.False(t, RuleMatches(day, r))
		}
	})
}

func TestParseClock(t *testing.T) {
	h, m, err := parseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "9", "25:00", "09:61", "ab:cd"} {
		_, _, err := parseClock(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}
}

func TestDayWindowOvernightWrap(t *testing.T) {
	r := types.Recurrence{
		Frequency:       types.FrequencyDaily,
		TimeWindowStart: "22:00",
		TimeWindowEnd:   "06:00",
	}
	start, end, err := dayWindow(monday, r, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, monday.Add(22*time.Hour), start)
	assert.Equal(t, monday.AddDate(0, 0, 1).Add(6*time.Hour), end)
}
