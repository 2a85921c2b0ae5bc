package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
)

// ExpandJobs expands job definitions into concrete power boxes over the
// horizon. Disabled jobs produce nothing. One-shot jobs are clipped to the
// horizon; recurring jobs emit one independently-clipped box per matching
// calendar day. Malformed definitions are dropped, never fatal.
func ExpandJobs(ctx context.Context, jobs []types.JobDefinition, horizon types.Horizon, loc *time.Location) []types.PowerBox {
	var boxes []types.PowerBox

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}

		if job.OneShot() {
			if job.Start.IsZero() || job.Finish.IsZero() {
				log.Ctx(ctx).DebugContext(ctx, "dropping one-shot job without start/finish",
					slog.String("entity", job.EntityID))
				continue
			}
			start, end := clip(job.Start, job.Finish, horizon.Start, horizon.End)
			if !end.After(start) {
				continue
			}
			boxes = append(boxes, types.PowerBox{
				Entity:          job.EntityID,
				Start:           start,
				Finish:          end,
				MaximumDuration: job.MaximumDuration,
				MinimumDuration: job.MinimumDuration,
				MinimumBurst:    job.MinimumBurst,
				ACPower:         job.ACPower,
				DCPower:         job.DCPower,
				Force:           job.Force,
				Benefit:         job.Benefit,
			})
			continue
		}

		rec := *job.Recurrence
		if _, _, err := parseClock(rec.TimeWindowStart); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "dropping recurring job with bad time window",
				slog.String("entity", job.EntityID), slog.Any("error", err))
			continue
		}
		if _, _, err := parseClock(rec.TimeWindowEnd); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "dropping recurring job with bad time window",
				slog.String("entity", job.EntityID), slog.Any("error", err))
			continue
		}
		eachHorizonDay(horizon, loc, func(day time.Time) {
			if !RuleMatches(day, rec) {
				return
			}
			winStart, winEnd, err := dayWindow(day, rec, loc)
			if err != nil {
				return
			}
			start, end := clip(winStart, winEnd, horizon.Start, horizon.End)
			if !end.After(start) {
				// clipped away entirely, expected near horizon edges
				return
			}
			boxes = append(boxes, types.PowerBox{
				Entity:          job.EntityID,
				Start:           start,
				Finish:          end,
				MaximumDuration: rec.MaximumDuration,
				MinimumDuration: rec.MinimumDuration,
				MinimumBurst:    rec.MinimumBurst,
				ACPower:         job.ACPower,
				DCPower:         job.DCPower,
				Force:           job.Force,
				Benefit:         job.Benefit,
			})
		})
	}

	return boxes
}
