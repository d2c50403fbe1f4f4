// Package rainfall implements the rainfall correlation stage (C6): a pure
// in-memory aggregation over the cycle's rainfall readings, avoiding any
// additional upstream call per spec.md §4.6's rationale.
package rainfall

import (
	"time"

	"github.com/riverwatch/riverwatch/internal/geo"
	"github.com/riverwatch/riverwatch/internal/model"
)

// Correlator aggregates rainfall readings near a centroid over a window.
type Correlator struct {
	heavyMM    float64
	moderateMM float64
}

// New builds a Correlator from the configured category thresholds (spec.md
// §6 default heavy=15mm, moderate=5mm).
func New(heavyMM, moderateMM float64) *Correlator {
	return &Correlator{heavyMM: heavyMM, moderateMM: moderateMM}
}

// Summarise aggregates every rainfall reading within radiusKM of the
// centroid and within window of now, from the in-memory slice produced by
// this cycle's rainfall fetcher.
func (c *Correlator) Summarise(readings []model.Reading, centroidLat, centroidLon, radiusKM float64, window time.Duration, now time.Time) model.RainfallSummary {
	cutoff := now.Add(-window)

	var total, maxHour float64
	stations := make(map[string]struct{})

	for _, r := range readings {
		if !r.HasCoords {
			continue
		}
		if r.Timestamp.Before(cutoff) {
			continue
		}
		if geo.HaversineKM(centroidLat, centroidLon, r.Lat, r.Lon) > radiusKM {
			continue
		}
		total += r.Value
		if r.Value > maxHour {
			maxHour = r.Value
		}
		stations[r.StationID] = struct{}{}
	}

	return model.RainfallSummary{
		TotalMM:    total,
		MaxHourMM:  maxHour,
		GaugeCount: len(stations),
		Category:   c.categorize(total),
	}
}

func (c *Correlator) categorize(totalMM float64) model.RainfallCategory {
	switch {
	case totalMM >= c.heavyMM:
		return model.RainfallHeavy
	case totalMM >= c.moderateMM:
		return model.RainfallModerate
	case totalMM > 0:
		return model.RainfallLight
	default:
		return model.RainfallNone
	}
}
