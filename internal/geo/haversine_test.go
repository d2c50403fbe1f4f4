package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/geo"
)

func TestHaversineKM_SamePointIsZero(t *testing.T) {
	d := geo.HaversineKM(51.5, -0.12, 51.5, -0.12)
	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestHaversineKM_KnownDistance(t *testing.T) {
	// London to Paris, roughly 344km great-circle.
	d := geo.HaversineKM(51.5074, -0.1278, 48.8566, 2.3522)
	assert.InDelta(t, 344, d, 5)
}

func TestCentroid_Midpoint(t *testing.T) {
	lat, lon := geo.Centroid([]float64{10, 20}, []float64{10, 20})
	require.InDelta(t, 15, lat, 1e-9)
	require.InDelta(t, 15, lon, 1e-9)
}

func TestCentroid_SinglePoint(t *testing.T) {
	lat, lon := geo.Centroid([]float64{51.5}, []float64{-0.12})
	assert.InDelta(t, 51.5, lat, 1e-9)
	assert.InDelta(t, -0.12, lon, 1e-9)
}
