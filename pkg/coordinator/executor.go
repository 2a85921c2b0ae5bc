package coordinator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ergbridge/ergbridge/pkg/hass"
	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// ScheduleSource provides the current schedule to the executor.
type ScheduleSource interface {
	Data() *types.ScheduleResponse
}

// Executor turns entities on and off at each slot tick according to the
// current schedule.
type Executor struct {
	source    ScheduleSource
	states    hass.StateSource
	commander hass.Commander
	slot      time.Duration
	paused    atomic.Bool

	// test hook
	now func() time.Time
}

// ConfiguredExecutor sets up an executor driven by the reconciler, ticking at
// the configured slot duration. Must be registered after Configured so the
// slot flag has been resolved.
func ConfiguredExecutor(r *Reconciler, states hass.StateSource, commander hass.Commander) *Executor {
	e := &Executor{
		source:    r,
		states:    states,
		commander: commander,
		now:       time.Now,
	}
	lflag.Do(func() {
		e.slot = r.SlotDuration()
	})
	return e
}

// NewExecutor creates an executor driven by the given schedule source.
func NewExecutor(source ScheduleSource, states hass.StateSource, commander hass.Commander, slot time.Duration) *Executor {
	return &Executor{
		source:    source,
		states:    states,
		commander: commander,
		slot:      slot,
		now:       time.Now,
	}
}

// Pause suspends execution without stopping the tick loop. Entity states are
// left as they are.
func (e *Executor) Pause() {
	e.paused.Store(true)
}

// Resume restarts execution after a pause.
func (e *Executor) Resume() {
	e.paused.Store(false)
}

// Paused reports whether execution is suspended.
func (e *Executor) Paused() bool {
	return e.paused.Load()
}

// Run ticks once per slot duration until the context is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.slot)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates the schedule once and reconciles each entity's on/off state
// with it. Entities already in the desired state are left alone.
func (e *Executor) Tick(ctx context.Context) {
	if e.paused.Load() {
		return
	}
	data := e.source.Data()
	if data == nil {
		return
	}

	now := e.now()
	for _, a := range data.Assignments {
		if types.IsSentinel(a.Entity) {
			continue
		}
		shouldBeOn := slotActive(a.Slots, now, e.slot)
		if shouldBeOn == e.states.IsOn(a.Entity) {
			continue
		}

		var err error
		if shouldBeOn {
			log.Ctx(ctx).DebugContext(ctx, "turning on", slog.String("entity", a.Entity))
			err = e.commander.TurnOn(ctx, a.Entity)
		} else {
			log.Ctx(ctx).DebugContext(ctx, "turning off", slog.String("entity", a.Entity))
			err = e.commander.TurnOff(ctx, a.Entity)
		}
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to switch entity",
				slog.String("entity", a.Entity), slog.Any("error", err))
		}
	}
}

func slotActive(slots []time.Time, now time.Time, slot time.Duration) bool {
	for _, start := range slots {
		if !start.After(now) && now.Before(start.Add(slot)) {
			return true
		}
	}
	return false
}
