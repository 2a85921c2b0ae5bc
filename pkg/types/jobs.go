package types

import (
	"fmt"
	"time"
)

// Frequency enumerates how a recurrence rule repeats.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekdays Frequency = "weekdays"
	FrequencyWeekends Frequency = "weekends"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyCustom   Frequency = "custom"
)

const (
	// SentinelPrefix marks synthetic entities that never correspond to a
	// real device (solar generation, injected active loads). Sentinel
	// entities bypass budget adjustment and are hidden from user surfaces.
	SentinelPrefix = "__"

	// SolarEntity is the reserved entity ID for forced solar generation
	// boxes.
	SolarEntity = "__solar__"
)

// IsSentinel reports whether an entity ID is a reserved synthetic entity.
func IsSentinel(entity string) bool {
	return len(entity) >= len(SentinelPrefix) && entity[:len(SentinelPrefix)] == SentinelPrefix
}

// Recurrence describes the repeating daily window of a recurring job or
// tariff. Weekdays are indexed Monday=0 through Sunday=6 to match the wire
// contract.
type Recurrence struct {
	Frequency       Frequency `json:"frequency"`
	TimeWindowStart string    `json:"time_window_start"` // "HH:MM" local clock time
	TimeWindowEnd   string    `json:"time_window_end"`   // may be <= start (overnight wrap)
	MaximumDuration Duration  `json:"maximum_duration,omitempty"`
	MinimumDuration Duration  `json:"minimum_duration,omitempty"`
	MinimumBurst    Duration  `json:"minimum_burst,omitempty"`
	DayOfWeek       int       `json:"day_of_week,omitempty"`  // weekly only
	DaysOfWeek      []int     `json:"days_of_week,omitempty"` // custom only
}

// JobDefinition declares a schedulable load. Exactly one shape applies:
// recurring (Recurrence set) or one-shot (absolute Start/Finish set).
type JobDefinition struct {
	EntityID string  `json:"entity_id"`
	ACPower  float64 `json:"ac_power"`
	DCPower  float64 `json:"dc_power"` // negative denotes generation
	Force    bool    `json:"force"`
	Benefit  float64 `json:"benefit"`
	Enabled  bool    `json:"enabled"`

	Recurrence *Recurrence `json:"recurrence,omitempty"`

	// One-shot fields. Ignored when Recurrence is set.
	Start           time.Time `json:"start,omitempty"`
	Finish          time.Time `json:"finish,omitempty"`
	MaximumDuration Duration  `json:"maximum_duration,omitempty"`
	MinimumDuration Duration  `json:"minimum_duration,omitempty"`
	MinimumBurst    Duration  `json:"minimum_burst,omitempty"`
}

// OneShot reports whether the job is a one-shot definition.
func (j JobDefinition) OneShot() bool {
	return j.Recurrence == nil
}

// Validate checks the mutual-exclusivity invariant between the recurring and
// one-shot shapes.
func (j JobDefinition) Validate() error {
	if j.EntityID == "" {
		return fmt.Errorf("job has no entity_id")
	}
	if j.Recurrence != nil {
		if !j.Start.IsZero() || !j.Finish.IsZero() {
			return fmt.Errorf("job %s: recurring and one-shot fields are mutually exclusive", j.EntityID)
		}
		if j.Recurrence.TimeWindowStart == "" || j.Recurrence.TimeWindowEnd == "" {
			return fmt.Errorf("job %s: recurrence is missing its time window", j.EntityID)
		}
		return nil
	}
	if j.Start.IsZero() || j.Finish.IsZero() {
		return fmt.Errorf("job %s: one-shot job requires start and finish", j.EntityID)
	}
	return nil
}

// TariffDefinition declares an import/feed-in price, either recurring or as
// an already-absolute period.
type TariffDefinition struct {
	Name        string  `json:"name"`
	ImportPrice float64 `json:"import_price"`
	FeedInPrice float64 `json:"feed_in_price"`

	Recurrence *Recurrence `json:"recurrence,omitempty"`

	// Absolute period fields. Ignored when Recurrence is set.
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Absolute reports whether the tariff carries an explicit absolute period.
// Tariffs that are neither recurring nor absolute are dropped by the
// expander; there is no meaningful default window.
func (t TariffDefinition) Absolute() bool {
	return t.Recurrence == nil && !t.Start.IsZero() && !t.End.IsZero()
}

// Validate checks the mutual-exclusivity invariant.
func (t TariffDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tariff has no name")
	}
	if t.Recurrence != nil && (!t.Start.IsZero() || !t.End.IsZero()) {
		return fmt.Errorf("tariff %s: recurring and absolute fields are mutually exclusive", t.Name)
	}
	return nil
}
