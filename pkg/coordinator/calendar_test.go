package coordinator

import (
	"testing"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendlyName(t *testing.T) {
	assert.Equal(t, "Pool Pump", friendlyName("switch.pool_pump"))
	assert.Equal(t, "Battery Soc", friendlyName("sensor.battery_soc"))
	assert.Equal(t, "Heater", friendlyName("heater"))
}

func TestBuildEvents(t *testing.T) {
	slot := 5 * time.Minute
	base := monday.Add(10 * time.Hour)

	data := &types.ScheduleResponse{Assignments: []types.Assignment{
		{
			Entity: "switch.pool_pump",
			Slots: []time.Time{
				// one contiguous run, then a gap, then a second run
				base, base.Add(slot), base.Add(2 * slot),
				base.Add(time.Hour),
			},
			RunTimeSeconds: 1200,
			EnergyCost:     0.5,
		},
		{Entity: types.SolarEntity, Slots: []time.Time{base}},
		{Entity: "switch.heater", Slots: nil},
	}}

	events := BuildEvents(data, slot)
	require.Len(t, events, 2)

	assert.Equal(t, base, events[0].Start)
	assert.Equal(t, base.Add(3*slot), events[0].End)
	assert.Equal(t, "Pool Pump", events[0].Summary)
	assert.Contains(t, events[0].Description, "Run time: 0.33h")
	assert.Contains(t, events[0].Description, "Cost: $0.50")

	assert.Equal(t, base.Add(time.Hour), events[1].Start)
	assert.Equal(t, base.Add(time.Hour).Add(slot), events[1].End)
}

func TestBuildEventsSortsAcrossEntities(t *testing.T) {
	slot := 5 * time.Minute
	base := monday.Add(10 * time.Hour)

	data := &types.ScheduleResponse{Assignments: []types.Assignment{
		{Entity: "switch.heater", Slots: []time.Time{base.Add(time.Hour)}},
		{Entity: "switch.pool_pump", Slots: []time.Time{base}},
	}}

	events := BuildEvents(data, slot)
	require.Len(t, events, 2)
	assert.Equal(t, "Pool Pump", events[0].Summary)
	assert.Equal(t, "Heater", events[1].Summary)
}

func TestEventsBetween(t *testing.T) {
	slot := 5 * time.Minute
	base := monday.Add(10 * time.Hour)

	data := &types.ScheduleResponse{Assignments: []types.Assignment{
		{Entity: "switch.pool_pump", Slots: []time.Time{base, base.Add(time.Hour)}},
	}}

	events := EventsBetween(data, slot, base.Add(30*time.Minute), base.Add(2*time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, base.Add(time.Hour), events[0].Start)
}

func TestNextEvent(t *testing.T) {
	slot := 5 * time.Minute
	base := monday.Add(10 * time.Hour)

	data := &types.ScheduleResponse{Assignments: []types.Assignment{
		{Entity: "switch.pool_pump", Slots: []time.Time{base, base.Add(time.Hour)}},
	}}

	// an in-progress event counts as next
	ev := NextEvent(data, slot, base.Add(2*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, base, ev.Start)

	ev = NextEvent(data, slot, base.Add(30*time.Minute))
	require.NotNil(t, ev)
	assert.Equal(t, base.Add(time.Hour), ev.Start)

	assert.Nil(t, NextEvent(data, slot, base.Add(3*time.Hour)))
	assert.Nil(t, NextEvent(nil, slot, base))
}
