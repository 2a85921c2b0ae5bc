package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationRE = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// Duration is a time span exchanged on the wire as a compact unit-suffixed
// string ("1h30m", "3600s"). It is parsed into a numeric value at the
// boundary and only formatted back when serialized.
type Duration time.Duration

// ParseWireDuration parses a compact h/m/s duration string.
func ParseWireDuration(s string) (Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	m := durationRE.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total int64
	if m[1] != "" {
		h, _ := strconv.ParseInt(m[1], 10, 64)
		total += h * 3600
	}
	if m[2] != "" {
		min, _ := strconv.ParseInt(m[2], 10, 64)
		total += min * 60
	}
	if m[3] != "" {
		sec, _ := strconv.ParseInt(m[3], 10, 64)
		total += sec
	}
	return Duration(time.Duration(total) * time.Second), nil
}

// Seconds returns the duration in whole seconds.
func (d Duration) Seconds() int {
	return int(time.Duration(d) / time.Second)
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String formats the duration compactly, omitting zero components ("1h30m",
// "45s"). The zero duration formats as "0s".
func (d Duration) String() string {
	total := d.Seconds()
	if total <= 0 {
		return "0s"
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	out := ""
	if h > 0 {
		out += strconv.Itoa(h) + "h"
	}
	if m > 0 {
		out += strconv.Itoa(m) + "m"
	}
	if s > 0 {
		out += strconv.Itoa(s) + "s"
	}
	return out
}

// FormatSeconds renders the seconds-form ("3600s") used where the wire
// contract expects an exact second count, like budget-adjusted maximum
// durations.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return strconv.Itoa(seconds) + "s"
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. An empty string decodes to zero
// so optional fields can be omitted upstream.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := ParseWireDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DurationFromSeconds converts a second count into a Duration.
func DurationFromSeconds(seconds int) Duration {
	return Duration(time.Duration(seconds) * time.Second)
}
