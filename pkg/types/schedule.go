package types

import "time"

// PowerBox is a concrete, horizon-clipped power demand (or generation)
// interval submitted to the optimizer. Invariant: Finish > Start and both lie
// within the horizon.
type PowerBox struct {
	Entity          string    `json:"entity"`
	Start           time.Time `json:"start_time"`
	Finish          time.Time `json:"finish_time"`
	MaximumDuration Duration  `json:"maximum_duration"`
	MinimumDuration Duration  `json:"minimum_duration"`
	MinimumBurst    Duration  `json:"minimum_burst"`
	ACPower         float64   `json:"ac_power"`
	DCPower         float64   `json:"dc_power"` // negative denotes generation
	Force           bool      `json:"force"`
	Benefit         float64   `json:"benefit"`
}

// TariffPeriod is an absolute, horizon-clipped price interval.
type TariffPeriod struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ImportPrice float64   `json:"import_price"`
	FeedInPrice float64   `json:"feed_in_price"`
}

// Horizon is the [Start, End) range being optimized this cycle, discretized
// into slots of SlotDuration.
type Horizon struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SlotDuration Duration  `json:"slot_duration"`
}

// SystemConfig carries the electrical limits and battery state sent with
// every request.
type SystemConfig struct {
	GridImportLimit           float64 `json:"grid_import_limit"`
	GridExportLimit           float64 `json:"grid_export_limit"`
	InverterPower             float64 `json:"inverter_power"`
	BatteryCapacity           float64 `json:"battery_capacity"`
	StateOfCharge             float64 `json:"state_of_charge"` // kWh
	BatteryStorageValuePerKWH float64 `json:"battery_storage_value_per_kilowatt_hour"`
	BatteryPreservation       float64 `json:"battery_preservation"`
}

// Tariff wraps the expanded periods for the request payload.
type Tariff struct {
	Periods []TariffPeriod `json:"periods"`
}

// ScheduleRequest is the payload submitted to the external optimizer.
type ScheduleRequest struct {
	System  SystemConfig `json:"system"`
	Tariff  Tariff       `json:"tariff"`
	Boxes   []PowerBox   `json:"boxes"`
	Horizon Horizon      `json:"horizon"`
}

// Assignment is the optimizer's allocation for one entity: the slot start
// instants it should run in, plus totals.
type Assignment struct {
	Entity         string      `json:"entity"`
	Slots          []time.Time `json:"slots"`
	RunTimeSeconds float64     `json:"run_time_seconds"`
	EnergyCost     float64     `json:"energy_cost"`
	EnergyBenefit  float64     `json:"energy_benefit"`
}

// BatteryProfileEntry is one point of the optimizer's projected battery
// state of charge and grid flows.
type BatteryProfileEntry struct {
	Time       time.Time `json:"time"`
	SOCKWH     float64   `json:"soc_kwh"`
	GridImport float64   `json:"grid_import"`
	GridExport float64   `json:"grid_export"`
}

// ScheduleResponse is the optimizer's answer. This core only reads
// assignments and the battery profile; totals are passed through to the
// status surfaces.
type ScheduleResponse struct {
	Assignments    []Assignment          `json:"assignments"`
	BatteryProfile []BatteryProfileEntry `json:"battery_profile"`
	TotalCost      float64               `json:"total_cost"`
	TotalBenefit   float64               `json:"total_benefit"`
	ExportRevenue  float64               `json:"export_revenue"`
	NetValue       float64               `json:"net_value"`
}

// AssignmentFor returns a pointer to the assignment for the given entity, or
// nil if the optimizer returned none.
func (r *ScheduleResponse) AssignmentFor(entity string) *Assignment {
	for i := range r.Assignments {
		if r.Assignments[i].Entity == entity {
			return &r.Assignments[i]
		}
	}
	return nil
}
