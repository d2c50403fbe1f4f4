package rainfall_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/rainfall"
)

func rainReading(stationID string, lat, lon, value float64, ts time.Time) model.Reading {
	return model.Reading{
		Source:    model.SourceRainfall,
		StationID: stationID,
		Timestamp: ts,
		Value:     value,
		Lat:       lat,
		Lon:       lon,
		HasCoords: true,
	}
}

func TestSummarise_AggregatesWithinRadiusAndWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := rainfall.New(15, 5)

	readings := []model.Reading{
		rainReading("a", 51.50, -0.10, 3.0, now),
		rainReading("b", 51.51, -0.11, 4.0, now.Add(-time.Hour)),
		rainReading("c", 40.0, 10.0, 100.0, now), // far away, excluded
		rainReading("d", 51.50, -0.10, 9.0, now.Add(-48*time.Hour)), // stale, excluded
	}

	summary := c.Summarise(readings, 51.5, -0.1, 10, 24*time.Hour, now)
	assert.InDelta(t, 7.0, summary.TotalMM, 1e-9)
	assert.InDelta(t, 4.0, summary.MaxHourMM, 1e-9)
	assert.Equal(t, 2, summary.GaugeCount)
	assert.Equal(t, model.RainfallModerate, summary.Category)
}

func TestSummarise_ExcludesReadingsWithoutCoords(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := rainfall.New(15, 5)
	readings := []model.Reading{
		{Source: model.SourceRainfall, StationID: "a", Timestamp: now, Value: 20, HasCoords: false},
	}
	summary := c.Summarise(readings, 51.5, -0.1, 10, 24*time.Hour, now)
	assert.Equal(t, model.RainfallNone, summary.Category)
	assert.Equal(t, 0, summary.GaugeCount)
}

func TestSummarise_CategoryThresholds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := rainfall.New(15, 5)

	cases := []struct {
		total float64
		want  model.RainfallCategory
	}{
		{0, model.RainfallNone},
		{2, model.RainfallLight},
		{5, model.RainfallModerate},
		{14.9, model.RainfallModerate},
		{15, model.RainfallHeavy},
	}

	for _, tc := range cases {
		readings := []model.Reading{rainReading("a", 51.5, -0.1, tc.total, now)}
		summary := c.Summarise(readings, 51.5, -0.1, 10, 24*time.Hour, now)
		assert.Equal(t, tc.want, summary.Category, "total=%v", tc.total)
	}
}
