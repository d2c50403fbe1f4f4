package cluster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/cluster"
	"github.com/riverwatch/riverwatch/internal/model"
)

func anomaly(source model.Source, stationID string, lat, lon float64, ts time.Time) model.Anomaly {
	return model.Anomaly{
		Reading: model.Reading{
			Source:    source,
			StationID: stationID,
			Timestamp: ts,
			Lat:       lat,
			Lon:       lon,
			HasCoords: true,
		},
	}
}

func anomalyAt(source model.Source, stationID string, lat, lon, easting, northing float64, ts time.Time) model.Anomaly {
	a := anomaly(source, stationID, lat, lon, ts)
	a.Easting, a.Northing = easting, northing
	return a
}

func TestCluster_CentroidEastingNorthingAveragesMembers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cluster.New(10, 24, 2)

	anomalies := []model.Anomaly{
		anomalyAt(model.SourceFlood, "a", 51.50, -0.10, 533000, 180000, now),
		anomalyAt(model.SourceFlood, "b", 51.51, -0.11, 534000, 181000, now),
	}

	clusters := c.Cluster(anomalies)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 533500, clusters[0].CentroidEasting, 1e-6)
	assert.InDelta(t, 180500, clusters[0].CentroidNorthing, 1e-6)
}

func TestCluster_GroupsNearbyAnomaliesWithinRadius(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cluster.New(10, 24, 2)

	anomalies := []model.Anomaly{
		anomaly(model.SourceFlood, "a", 51.50, -0.10, now),
		anomaly(model.SourceFlood, "b", 51.51, -0.11, now),
		anomaly(model.SourceFlood, "c", 40.00, 10.00, now), // far away, own cluster, size 1
	}

	clusters := c.Cluster(anomalies)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 2)
	assert.Equal(t, model.SourceKindFlood, clusters[0].SourceKind)
}

func TestCluster_DiscardsUndersizedClusters(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cluster.New(10, 24, 2)
	anomalies := []model.Anomaly{
		anomaly(model.SourceFlood, "a", 51.50, -0.10, now),
	}
	assert.Empty(t, c.Cluster(anomalies))
}

func TestCluster_ExcludesAnomaliesOutsideTemporalWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-48 * time.Hour)
	c := cluster.New(10, 24, 2)

	anomalies := []model.Anomaly{
		anomaly(model.SourceFlood, "a", 51.50, -0.10, now),
		anomaly(model.SourceFlood, "b", 51.51, -0.11, now),
		anomaly(model.SourceFlood, "c", 51.50, -0.10, stale),
	}

	clusters := c.Cluster(anomalies)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 2)
}

func TestCluster_MixedSourceKind(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cluster.New(10, 24, 2)
	anomalies := []model.Anomaly{
		anomaly(model.SourceFlood, "a", 51.50, -0.10, now),
		anomaly(model.SourceHydrology, "b", 51.51, -0.11, now),
	}
	clusters := c.Cluster(anomalies)
	require.Len(t, clusters, 1)
	assert.Equal(t, model.SourceKindMixed, clusters[0].SourceKind)
}

func TestCluster_EmptyInput(t *testing.T) {
	c := cluster.New(10, 24, 2)
	assert.Nil(t, c.Cluster(nil))
}
