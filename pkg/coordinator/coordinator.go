// Package coordinator assembles the per-cycle scheduling problem, submits it
// to the optimizer, and reconciles the response with in-progress runs.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ergbridge/ergbridge/pkg/hass"
	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/optimizer"
	"github.com/ergbridge/ergbridge/pkg/schedule"
	"github.com/ergbridge/ergbridge/pkg/storage"
	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
)

// State is the phase the reconciler is currently in. Failed is sticky until
// the next successful refresh.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateRequesting State = "requesting"
	StateMerging    State = "merging"
	StateFailed     State = "failed"
)

// SystemSettings are the electrical limits and battery settings submitted
// with every request.
type SystemSettings struct {
	GridImportLimit     float64 `json:"grid_import_limit"`
	GridExportLimit     float64 `json:"grid_export_limit"`
	InverterPower       float64 `json:"inverter_power"`
	BatteryCapacity     float64 `json:"battery_capacity"`
	BatteryStorageValue float64 `json:"battery_storage_value"`
	BatteryPreservation float64 `json:"battery_preservation"`
}

// Config carries the static settings of the reconciler.
type Config struct {
	Location         *time.Location
	SlotDuration     time.Duration
	Horizon          time.Duration
	ExtendToEndOfDay bool
	UpdateInterval   time.Duration

	System           SystemSettings
	BatterySOCEntity string
	BatterySOCUnit   string
}

// Reconciler runs the refresh cycle: expand definitions, deduct elapsed
// budgets, preserve active runs, call the optimizer, and merge the answer.
// Refreshes are serialized; callers may invoke Refresh from multiple
// goroutines.
type Reconciler struct {
	cfg    Config
	db     storage.Database
	client optimizer.Client
	states hass.StateSource

	tracker *schedule.Tracker

	mu          sync.Mutex
	data        *types.ScheduleResponse
	state       State
	lastErr     error
	lastRefresh time.Time

	// test hook
	now func() time.Time
}

// Configured sets up the reconciler based on flags.
func Configured(db storage.Database, client optimizer.Client, states hass.StateSource) *Reconciler {
	timezone := lflag.String("timezone", "Local", "IANA timezone for day boundaries and recurrence windows")
	slotDuration := lflag.Duration("slot-duration", 5*time.Minute, "Optimizer slot duration")
	horizon := lflag.Duration("horizon", 24*time.Hour, "Scheduling horizon length")
	extendToEOD := lflag.Bool("extend-to-end-of-day", true, "Extend the horizon to the end of its final day")
	updateInterval := lflag.Duration("update-interval", 5*time.Minute, "Interval between refresh cycles")
	socEntity := lflag.String("battery-soc-entity", "", "Entity holding the battery state of charge")
	socUnit := lflag.String("battery-soc-unit", "%", "Unit of the SoC entity (% or kWh)")

	system := SystemSettings{GridImportLimit: 10, GridExportLimit: 5, InverterPower: 5}
	lflag.JSON(&system, "system-config", system, "JSON electrical limits and battery settings")

	r := &Reconciler{}

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone %q: %v", *timezone, err))
		}
		*r = *New(Config{
			Location:         loc,
			SlotDuration:     *slotDuration,
			Horizon:          *horizon,
			ExtendToEndOfDay: *extendToEOD,
			UpdateInterval:   *updateInterval,
			System:           system,
			BatterySOCEntity: *socEntity,
			BatterySOCUnit:   *socUnit,
		}, db, client, states)
	})

	return r
}

// New creates a reconciler with the given configuration.
func New(cfg Config, db storage.Database, client optimizer.Client, states hass.StateSource) *Reconciler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Reconciler{
		cfg:     cfg,
		db:      db,
		client:  client,
		states:  states,
		tracker: schedule.NewTracker(cfg.Location),
		state:   StateIdle,
		now:     time.Now,
	}
}

// Restore seeds the elapsed counters from storage. Counters persisted on a
// previous day are discarded.
func (r *Reconciler) Restore(ctx context.Context) error {
	day, elapsed, err := r.db.LoadElapsed(ctx)
	if err != nil {
		return fmt.Errorf("failed to load elapsed counters: %w", err)
	}
	if day.IsZero() || len(elapsed) == 0 {
		return nil
	}

	r.mu.Lock()
	applied := r.tracker.Restore(r.now(), day, elapsed)
	r.mu.Unlock()

	if applied {
		log.Ctx(ctx).InfoContext(ctx, "restored elapsed counters",
			slog.Int("entities", len(elapsed)))
	} else {
		log.Ctx(ctx).InfoContext(ctx, "discarding stale elapsed counters",
			slog.Time("persistedDay", day))
	}
	return nil
}

// Data returns the last successful schedule, or nil before the first success.
// Stale data survives failed refreshes so consumers keep a valid schedule.
func (r *Reconciler) Data() *types.ScheduleResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Status returns the current state, the last error (nil after a successful
// refresh), and the time of the last successful refresh.
func (r *Reconciler) Status() (State, error, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.lastErr, r.lastRefresh
}

// SlotDuration returns the configured optimizer slot duration.
func (r *Reconciler) SlotDuration() time.Duration {
	return r.cfg.SlotDuration
}

// Elapsed returns today's elapsed seconds per entity.
func (r *Reconciler) Elapsed() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker.Snapshot()
}

// SetElapsed overrides one entity's elapsed counter and persists the change.
func (r *Reconciler) SetElapsed(ctx context.Context, entityID string, seconds float64) error {
	r.mu.Lock()
	r.tracker.SetElapsed(entityID, seconds)
	day := r.tracker.TrackedDate()
	snapshot := r.tracker.Snapshot()
	r.mu.Unlock()

	if err := r.db.SaveElapsed(ctx, day, snapshot); err != nil {
		return fmt.Errorf("failed to persist elapsed counters: %w", err)
	}
	return nil
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Refresh runs one full reconcile cycle. On failure the previous schedule is
// retained so consumers keep a stale but valid view.
func (r *Reconciler) Refresh(ctx context.Context) error {
	ctx = log.WithCycle(ctx, uuid.NewString())

	r.mu.Lock()
	if r.state == StateCollecting || r.state == StateRequesting || r.state == StateMerging {
		r.mu.Unlock()
		return fmt.Errorf("refresh already in progress")
	}
	r.state = StateCollecting
	r.mu.Unlock()

	err := r.refresh(ctx)

	r.mu.Lock()
	if err != nil {
		r.state = StateFailed
		r.lastErr = err
	} else {
		r.state = StateIdle
		r.lastErr = nil
		r.lastRefresh = r.now()
	}
	r.mu.Unlock()
	return err
}

func (r *Reconciler) refresh(ctx context.Context) error {
	now := r.now()
	slot := r.cfg.SlotDuration

	r.mu.Lock()
	prev := r.previousAssignments()
	if r.tracker.Update(now, prev, slot) {
		log.Ctx(ctx).InfoContext(ctx, "new day, elapsed counters reset")
	}
	r.mu.Unlock()

	horizon := r.horizon(now)

	soc := r.resolveSOC(ctx)

	tariffDefs, err := r.db.ListTariffs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tariffs: %w", err)
	}
	tariffPeriods := schedule.ExpandTariffs(ctx, tariffDefs, horizon, r.cfg.Location)

	solarBoxes := schedule.SolarBoxes(ctx, r.states.SolarForecast(), horizon)

	jobs, err := r.db.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	jobBoxes := schedule.ExpandJobs(ctx, jobs, horizon, r.cfg.Location)

	allBoxes := append(solarBoxes, jobBoxes...)

	r.mu.Lock()
	runs := schedule.ActiveRuns(prev, now, slot)
	allBoxes = r.tracker.AdjustBoxes(ctx, allBoxes, runs, slot)
	r.mu.Unlock()

	allBoxes = r.injectActiveLoads(ctx, allBoxes, jobs, now)

	req := types.ScheduleRequest{
		System: types.SystemConfig{
			GridImportLimit:           r.cfg.System.GridImportLimit,
			GridExportLimit:           r.cfg.System.GridExportLimit,
			InverterPower:             r.cfg.System.InverterPower,
			BatteryCapacity:           r.cfg.System.BatteryCapacity,
			StateOfCharge:             soc,
			BatteryStorageValuePerKWH: r.cfg.System.BatteryStorageValue,
			BatteryPreservation:       r.cfg.System.BatteryPreservation,
		},
		Tariff:  types.Tariff{Periods: tariffPeriods},
		Boxes:   allBoxes,
		Horizon: horizon,
	}

	r.setState(StateRequesting)
	resp, err := r.client.Schedule(ctx, req)
	if err != nil {
		return fmt.Errorf("schedule failed with %s: %w", boxSummary(allBoxes), err)
	}

	r.setState(StateMerging)
	schedule.MergeAssignments(resp, runs, slot)

	r.mu.Lock()
	r.data = resp
	day := r.tracker.TrackedDate()
	snapshot := r.tracker.Snapshot()
	r.mu.Unlock()

	// elapsed is only persisted after a successful cycle so a restart
	// cannot restore counters the last schedule never saw
	if err := r.db.SaveElapsed(ctx, day, snapshot); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to persist elapsed counters", slog.Any("error", err))
	}

	log.Ctx(ctx).InfoContext(ctx, "refresh complete",
		slog.Int("boxes", len(allBoxes)),
		slog.Int("assignments", len(resp.Assignments)))
	return nil
}

// previousAssignments must be called with the mutex held.
func (r *Reconciler) previousAssignments() []types.Assignment {
	if r.data == nil {
		return nil
	}
	return r.data.Assignments
}

func (r *Reconciler) horizon(now time.Time) types.Horizon {
	end := now.Add(r.cfg.Horizon)
	if r.cfg.ExtendToEndOfDay {
		end = types.DayStart(end.In(r.cfg.Location).AddDate(0, 0, 1), r.cfg.Location)
	}
	return types.Horizon{
		Start:        now,
		End:          end,
		SlotDuration: types.Duration(r.cfg.SlotDuration),
	}
}

// resolveSOC reads the battery state of charge and converts it to kWh. A
// percentage unit is resolved against the configured capacity.
func (r *Reconciler) resolveSOC(ctx context.Context) float64 {
	if r.cfg.BatterySOCEntity == "" {
		return 0
	}
	value, err := r.states.Float(r.cfg.BatterySOCEntity)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "could not read battery SoC",
			slog.String("entity", r.cfg.BatterySOCEntity), slog.Any("error", err))
		return 0
	}
	if r.cfg.BatterySOCUnit == "%" {
		return value / 100 * r.cfg.System.BatteryCapacity
	}
	return value
}

// injectActiveLoads appends forced boxes for managed entities that are
// currently on but absent from the submitted set, so the optimizer models
// their power draw in the battery projection.
func (r *Reconciler) injectActiveLoads(ctx context.Context, boxes []types.PowerBox, jobs []types.JobDefinition, now time.Time) []types.PowerBox {
	submitted := make(map[string]struct{}, len(boxes))
	for _, b := range boxes {
		submitted[b.Entity] = struct{}{}
	}

	interval := types.Duration(r.cfg.UpdateInterval)

	for _, job := range jobs {
		if job.EntityID == "" {
			continue
		}
		if _, ok := submitted[job.EntityID]; ok {
			continue
		}
		if !r.states.IsOn(job.EntityID) {
			continue
		}
		if job.ACPower == 0 && job.DCPower == 0 {
			continue
		}

		log.Ctx(ctx).DebugContext(ctx, "injecting active load",
			slog.String("entity", job.EntityID),
			slog.Float64("acPower", job.ACPower),
			slog.Float64("dcPower", job.DCPower))

		boxes = append(boxes, types.PowerBox{
			Entity:          fmt.Sprintf("__active_%s__", job.EntityID),
			Start:           now,
			Finish:          now.Add(r.cfg.UpdateInterval),
			MaximumDuration: interval,
			MinimumDuration: interval,
			MinimumBurst:    interval,
			ACPower:         job.ACPower,
			DCPower:         job.DCPower,
			Force:           true,
		})
	}
	return boxes
}

// boxSummary renders "N jobs (M forced): names" for failure messages, naming
// only the real forced entities.
func boxSummary(boxes []types.PowerBox) string {
	var forced []string
	for _, b := range boxes {
		if b.Force && !types.IsSentinel(b.Entity) {
			forced = append(forced, b.Entity)
		}
	}
	summary := fmt.Sprintf("%d jobs (%d forced)", len(boxes), len(forced))
	if len(forced) > 0 {
		summary += ": " + strings.Join(forced, ", ")
	}
	return summary
}

// Run refreshes immediately and then on every update interval until the
// context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "refresh failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(r.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "refresh failed", slog.Any("error", err))
			}
		}
	}
}
