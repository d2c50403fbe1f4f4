package detect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/detect"
	"github.com/riverwatch/riverwatch/internal/model"
)

func reading(source model.Source, param string, value float64, hasCoords bool) model.Reading {
	return model.Reading{
		Source:    source,
		StationID: "st-1",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Parameter: param,
		Value:     value,
		HasCoords: hasCoords,
	}
}

func TestClassify_RetainsExceedancesOnly(t *testing.T) {
	d := detect.NewThresholdDetector(map[string]float64{
		"flood:level": 2.0,
	})

	readings := []model.Reading{
		reading(model.SourceFlood, "level", 3.0, true),
		reading(model.SourceFlood, "level", 1.5, true),
	}

	out := d.Classify(readings)
	require.Len(t, out, 1)
	assert.Equal(t, 3.0, out[0].Value)
	assert.Equal(t, 2.0, out[0].Threshold)
	assert.InDelta(t, 0.5, out[0].ExceedFraction, 1e-9)
}

func TestClassify_DropsReadingsWithoutCoords(t *testing.T) {
	d := detect.NewThresholdDetector(map[string]float64{"flood:level": 1.0})
	readings := []model.Reading{reading(model.SourceFlood, "level", 5.0, false)}
	assert.Empty(t, d.Classify(readings))
}

func TestClassify_DropsReadingsWithNoConfiguredThreshold(t *testing.T) {
	d := detect.NewThresholdDetector(map[string]float64{"flood:level": 1.0})
	readings := []model.Reading{reading(model.SourceHydrology, "level", 5.0, true)}
	assert.Empty(t, d.Classify(readings))
}

func TestClassify_EqualToThresholdDoesNotExceed(t *testing.T) {
	d := detect.NewThresholdDetector(map[string]float64{"flood:level": 2.0})
	readings := []model.Reading{reading(model.SourceFlood, "level", 2.0, true)}
	assert.Empty(t, d.Classify(readings))
}
