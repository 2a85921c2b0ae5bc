package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstant(t *testing.T) {
	t.Run("equivalent encodings hash identically", func(t *testing.T) {
		// A forecast keyed by timestamp string must be matched by
		// parsed-instant identity, regardless of how the producer
		// formatted the offset or sub-second component.
		variants := []string{
			"2024-06-01T10:00:00+00:00",
			"2024-06-01T10:00:00Z",
			"2024-06-01T10:00:00.000Z",
			"2024-06-01T12:00:00+02:00",
		}
		seen := map[time.Time]int{}
		for _, v := range variants {
			ts, err := ParseInstant(v)
			require.NoError(t, err)
			seen[ts]++
		}
		assert.Len(t, seen, 1, "all variants should collapse to one map key")
	})

	t.Run("fractional seconds", func(t *testing.T) {
		ts, err := ParseInstant("2024-06-01T10:00:00.123456+01:00")
		require.NoError(t, err)
		assert.Equal(t, 123456000, ts.Nanosecond())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseInstant("yesterday")
		assert.Error(t, err)
	})
}

func TestSameDate(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	// 23:30 and 00:30 next day local are different dates locally even though
	// they may share a UTC date.
	a := time.Date(2024, 6, 1, 23, 30, 0, 0, loc)
	b := time.Date(2024, 6, 2, 0, 30, 0, 0, loc)
	assert.False(t, SameDate(a, b, loc))
	assert.True(t, SameDate(a, a.Add(10*time.Minute), loc))

	// A UTC instant is compared in the target location.
	utc := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC) // Jun 2 in Sydney
	assert.True(t, SameDate(utc, b, loc))
}

func TestDayStart(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	ts := time.Date(2024, 3, 15, 17, 42, 9, 120, loc)
	start := DayStart(ts, loc)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, loc), start)
}
