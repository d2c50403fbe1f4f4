// Package detect implements the anomaly classification stage (C3): a
// pure function over readings, configuration-driven thresholds keyed by
// (source, parameter).
package detect

import (
	"fmt"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Detector classifies readings as anomalous. The threshold-based
// implementation is the shipped default; spec.md §9 leaves the interface
// pluggable for a future z-score variant.
type Detector interface {
	Classify(readings []model.Reading) []model.Anomaly
}

// ThresholdDetector retains readings whose value exceeds a
// source/parameter-specific threshold.
type ThresholdDetector struct {
	thresholds map[string]float64
}

// NewThresholdDetector builds a ThresholdDetector from a
// "source:parameter" -> threshold map, the shape config.AnomalyConfig.Thresholds
// already provides.
func NewThresholdDetector(thresholds map[string]float64) *ThresholdDetector {
	return &ThresholdDetector{thresholds: thresholds}
}

func thresholdKey(source model.Source, parameter string) string {
	return fmt.Sprintf("%s:%s", source, parameter)
}

// Classify returns, in input order, every reading whose value exceeds its
// configured threshold. Readings without coordinates are dropped (they
// cannot be clustered); readings with no configured threshold for their
// (source, parameter) pair are dropped silently.
func (d *ThresholdDetector) Classify(readings []model.Reading) []model.Anomaly {
	out := make([]model.Anomaly, 0, len(readings))
	for _, r := range readings {
		if !r.HasCoords {
			continue
		}
		threshold, ok := d.thresholds[thresholdKey(r.Source, r.Parameter)]
		if !ok {
			continue
		}
		if r.Value <= threshold {
			continue
		}
		out = append(out, model.Anomaly{
			Reading:        r,
			Threshold:      threshold,
			ExceedFraction: (r.Value - threshold) / threshold,
		})
	}
	return out
}
