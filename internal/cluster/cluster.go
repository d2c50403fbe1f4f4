// Package cluster implements the spatial/temporal grouping stage (C4):
// greedy single-linkage clustering over great-circle distance, restricted
// to the temporal window ending at the latest timestamp in the input.
package cluster

import (
	"time"

	"github.com/riverwatch/riverwatch/internal/geo"
	"github.com/riverwatch/riverwatch/internal/model"
)

// Clusterer groups anomalies by proximity in space and time.
type Clusterer struct {
	spatialRadiusKM     float64
	temporalWindowHours int
	minClusterSize      int
}

// New builds a Clusterer from the configured radius, window and minimum
// cluster size (spec.md §4.4, default min_cluster_size=2).
func New(spatialRadiusKM float64, temporalWindowHours, minClusterSize int) *Clusterer {
	if minClusterSize <= 0 {
		minClusterSize = 2
	}
	return &Clusterer{
		spatialRadiusKM:     spatialRadiusKM,
		temporalWindowHours: temporalWindowHours,
		minClusterSize:      minClusterSize,
	}
}

// Cluster groups anomalies into disjoint clusters. Anomalies older than
// temporal_window_hours relative to the newest timestamp in the input are
// excluded before clustering begins. Within the remaining set, it walks
// anomalies in input order; each unassigned anomaly seeds a new cluster
// that greedily absorbs every other unassigned anomaly within
// spatial_radius_km of the seed. A cluster surviving with fewer than
// minClusterSize members is discarded entirely (its members are not
// retried in a later cluster, matching "ties broken by input order").
func (c *Clusterer) Cluster(anomalies []model.Anomaly) []model.Cluster {
	if len(anomalies) == 0 {
		return nil
	}

	latest := anomalies[0].Timestamp
	for _, a := range anomalies[1:] {
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}
	windowStart := latest.Add(-time.Duration(c.temporalWindowHours) * time.Hour)

	candidates := make([]model.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if a.Timestamp.Before(windowStart) {
			continue
		}
		candidates = append(candidates, a)
	}

	assigned := make([]bool, len(candidates))
	var clusters []model.Cluster

	for i, seed := range candidates {
		if assigned[i] {
			continue
		}

		members := []model.Anomaly{seed}
		assigned[i] = true

		for j := i + 1; j < len(candidates); j++ {
			if assigned[j] {
				continue
			}
			cand := candidates[j]
			if geo.HaversineKM(seed.Lat, seed.Lon, cand.Lat, cand.Lon) <= c.spatialRadiusKM {
				members = append(members, cand)
				assigned[j] = true
			}
		}

		if len(members) < c.minClusterSize {
			continue
		}

		clusters = append(clusters, buildCluster(members, windowStart, latest))
	}

	return clusters
}

func buildCluster(members []model.Anomaly, windowStart, windowEnd time.Time) model.Cluster {
	lats := make([]float64, len(members))
	lons := make([]float64, len(members))
	eastings := make([]float64, len(members))
	northings := make([]float64, len(members))
	for i, m := range members {
		lats[i] = m.Lat
		lons[i] = m.Lon
		eastings[i] = m.Easting
		northings[i] = m.Northing
	}
	centroidLat, centroidLon := geo.Centroid(lats, lons)
	centroidEasting, centroidNorthing := geo.Centroid(eastings, northings)

	return model.Cluster{
		Members:          members,
		CentroidLat:      centroidLat,
		CentroidLon:      centroidLon,
		CentroidEasting:  centroidEasting,
		CentroidNorthing: centroidNorthing,
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		SourceKind:       sourceKind(members),
	}
}

func sourceKind(members []model.Anomaly) model.SourceKind {
	allFlood, allHydrology := true, true
	for _, m := range members {
		if m.Source != model.SourceFlood {
			allFlood = false
		}
		if m.Source != model.SourceHydrology {
			allHydrology = false
		}
	}
	switch {
	case allFlood:
		return model.SourceKindFlood
	case allHydrology:
		return model.SourceKindHydrology
	default:
		return model.SourceKindMixed
	}
}
