package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
)

// ExpandTariffs expands tariff definitions into absolute price periods over
// the horizon. Absolute tariffs pass through unclipped only when they carry
// an explicit window; recurring tariffs use the same day-iteration and
// overnight-wrap rules as jobs but carry only price fields. Input order is
// preserved.
func ExpandTariffs(ctx context.Context, tariffs []types.TariffDefinition, horizon types.Horizon, loc *time.Location) []types.TariffPeriod {
	var periods []types.TariffPeriod

	for _, tariff := range tariffs {
		if tariff.Recurrence == nil {
			if !tariff.Absolute() {
				// no recurrence and no explicit window: nothing
				// meaningful to emit
				log.Ctx(ctx).DebugContext(ctx, "dropping tariff without window",
					slog.String("tariff", tariff.Name))
				continue
			}
			periods = append(periods, types.TariffPeriod{
				Start:       tariff.Start,
				End:         tariff.End,
				ImportPrice: tariff.ImportPrice,
				FeedInPrice: tariff.FeedInPrice,
			})
			continue
		}

		rec := *tariff.Recurrence
		if _, _, err := parseClock(rec.TimeWindowStart); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "dropping tariff with bad time window",
				slog.String("tariff", tariff.Name), slog.Any("error", err))
			continue
		}
		if _, _, err := parseClock(rec.TimeWindowEnd); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "dropping tariff with bad time window",
				slog.String("tariff", tariff.Name), slog.Any("error", err))
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
				return
			}
			periods = append(periods, types.TariffPeriod{
				Start:       start,
				End:         end,
				ImportPrice: tariff.ImportPrice,
				FeedInPrice: tariff.FeedInPrice,
			})
		})
	}

	return periods
}
