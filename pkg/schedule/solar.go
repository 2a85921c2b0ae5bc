package schedule

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ergbridge/ergbridge/pkg/log"
	"github.com/ergbridge/ergbridge/pkg/types"
)

// SolarBoxes converts a sparse Wh-per-period forecast into forced generation
// boxes. The period length is the gap to the next forecast timestamp, or one
// hour for the last entry. The power rate is derived from the nominal
// (unclipped) period so clipping shortens the box without diluting the rate:
// the modeled energy of a clipped box is proportionally smaller than the
// forecast entry, which is intentional.
func SolarBoxes(ctx context.Context, forecast map[time.Time]float64, horizon types.Horizon) []types.PowerBox {
	if len(forecast) == 0 {
		return nil
	}

	starts := make([]time.Time, 0, len(forecast))
	for ts := range forecast {
		starts = append(starts, ts)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	var boxes []types.PowerBox
	for i, periodStart := range starts {
		var periodEnd time.Time
		if i+1 < len(starts) {
			periodEnd = starts[i+1]
		} else {
			periodEnd = periodStart.Add(time.Hour)
		}

		start, end := clip(periodStart, periodEnd, horizon.Start, horizon.End)
		if !end.After(start) {
			continue
		}

		wh := forecast[periodStart]
		if wh <= 0 {
			continue
		}

		nominalHours := periodEnd.Sub(periodStart).Hours()
		if nominalHours <= 0 {
			continue
		}
		rateKW := (wh / 1000) / nominalHours

		span := end.Sub(start)
		dur := types.Duration(span.Truncate(time.Second))
		boxes = append(boxes, types.PowerBox{
			Entity:          types.SolarEntity,
			Start:           start,
			Finish:          end,
			MaximumDuration: dur,
			MinimumDuration: dur,
			MinimumBurst:    dur,
			ACPower:         0,
			DCPower:         -rateKW,
			Force:           true,
			Benefit:         0,
		})
	}

	log.Ctx(ctx).DebugContext(ctx, "converted solar forecast",
		slog.Int("periods", len(forecast)), slog.Int("boxes", len(boxes)))
	return boxes
}
