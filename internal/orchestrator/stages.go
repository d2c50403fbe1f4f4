package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/riverwatch/riverwatch/internal/fetch"
	"github.com/riverwatch/riverwatch/internal/model"
)

// enrichedCluster pairs a Cluster with its ENRICH-stage results.
type enrichedCluster struct {
	cluster  model.Cluster
	permits  []model.Permit
	rainfall model.RainfallSummary
}

// stageFetch launches every fetcher concurrently against a shared
// deadline and merges their results. A fetcher's failure is recorded as
// a StageError and does not block the others, mirroring the teacher's
// executeTasks per-task error isolation. Per spec.md §4.2/§4.12, a
// fetcher failure (even every fetcher failing) never aborts the cycle:
// a cycle with zero readings is valid and proceeds to DETECT with an
// empty set, producing a run log with zero anomalies/clusters/incidents.
func (o *Orchestrator) stageFetch(ctx context.Context, entry *model.AgentRunLog) []model.Reading {
	start := time.Now()
	ctx, span := stageSpan(ctx, "FETCH")
	defer func() {
		span.End()
		o.observeStage("FETCH", start)
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	type result struct {
		source   model.Source
		readings []model.Reading
		err      error
	}
	results := make(chan result, len(o.fetchers))
	var wg sync.WaitGroup
	for _, f := range o.fetchers {
		wg.Add(1)
		go func(f fetch.Fetcher) {
			defer wg.Done()
			readings, err := f.FetchLatest(fetchCtx)
			results <- result{source: f.Source(), readings: readings, err: err}
		}(f)
	}
	wg.Wait()
	close(results)

	var all []model.Reading
	stationsSeen := make(map[model.StationKey]struct{})
	for r := range results {
		entry.ExternalAPICallCounts[string(r.source)]++
		if r.err != nil {
			entry.Errors = append(entry.Errors, model.StageError{Stage: "FETCH", Message: fmt.Sprintf("%s: %v", r.source, r.err)})
			if o.m != nil {
				o.m.StageErrors.WithLabelValues("FETCH").Inc()
			}
			span.RecordError(r.err)
			continue
		}
		entry.ReadingsFetched[r.source] += len(r.readings)
		if o.m != nil {
			o.m.ReadingsFetched.WithLabelValues(string(r.source)).Add(float64(len(r.readings)))
		}
		for _, reading := range r.readings {
			stationsSeen[model.StationKey{Source: reading.Source, StationID: reading.StationID}] = struct{}{}
		}
		all = append(all, r.readings...)
	}
	entry.StationsFetched = len(stationsSeen)

	return all
}

// stageDetect runs C3 over flood+hydrology readings only; rainfall
// readings bypass detection per spec.md §4.12 step 3.
func (o *Orchestrator) stageDetect(ctx context.Context, readings []model.Reading) []model.Anomaly {
	start := time.Now()
	_, span := stageSpan(ctx, "DETECT")
	defer func() {
		span.End()
		o.observeStage("DETECT", start)
	}()

	detectable := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Source == model.SourceRainfall {
			continue
		}
		detectable = append(detectable, r)
	}
	anomalies := o.detector.Classify(detectable)
	span.SetAttributes(attribute.Int("anomalies", len(anomalies)))
	if o.m != nil {
		o.m.AnomaliesFound.Add(float64(len(anomalies)))
	}
	return anomalies
}

func (o *Orchestrator) stageCluster(ctx context.Context, anomalies []model.Anomaly, entry *model.AgentRunLog) []model.Cluster {
	start := time.Now()
	_, span := stageSpan(ctx, "CLUSTER")
	defer func() {
		span.End()
		o.observeStage("CLUSTER", start)
	}()

	clusters := o.clusterer.Cluster(anomalies)
	entry.ClustersFound = len(clusters)
	if o.m != nil {
		o.m.ClustersFound.Observe(float64(len(clusters)))
	}
	for _, c := range clusters {
		entry.Clusters = append(entry.Clusters, model.ClusterBreakdown{
			CentroidLat:  c.CentroidLat,
			CentroidLon:  c.CentroidLon,
			StationCount: len(c.StationIDs()),
		})
	}
	span.SetAttributes(attribute.Int("clusters", len(clusters)))
	return clusters
}

// stageEnrich fans C5 (permits) and C6 (rainfall) out concurrently per
// cluster, bounded by a semaphore sized to config.EnrichConfig.MaxClusterFanout,
// matching the teacher's NewOrchestrator semaphore channel. rainfallReadings
// is C2's rainfall-fetcher output for the cycle, carried past DETECT
// (which drops it, per spec.md §4.12 step 3) so C6 has the readings it
// is actually meant to correlate, rather than the cluster's own
// flood/hydrology anomalies.
func (o *Orchestrator) stageEnrich(ctx context.Context, clusters []model.Cluster, rainfallReadings []model.Reading) []enrichedCluster {
	start := time.Now()
	_, span := stageSpan(ctx, "ENRICH")
	defer func() {
		span.End()
		o.observeStage("ENRICH", start)
	}()

	fanout := o.enrich.MaxClusterFanout
	if fanout <= 0 {
		fanout = 1
	}
	sem := make(chan struct{}, fanout)
	out := make([]enrichedCluster, len(clusters))

	var wg sync.WaitGroup
	for i, c := range clusters {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c model.Cluster) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = o.enrichOne(ctx, c, rainfallReadings)
		}(i, c)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) enrichOne(ctx context.Context, c model.Cluster, rainfallReadings []model.Reading) enrichedCluster {
	var wg sync.WaitGroup
	var permitResult []model.Permit
	var rainfallResult model.RainfallSummary

	wg.Add(2)
	go func() {
		defer wg.Done()
		if o.permitSearcher == nil {
			return
		}
		found, err := o.permitSearcher.SearchNear(ctx, c.CentroidLat, c.CentroidLon, c.CentroidEasting, c.CentroidNorthing, o.enrich.PermitSearchRadiusKM)
		if err != nil {
			o.logger.Printf("permit search failed for cluster at (%.4f,%.4f): %v", c.CentroidLat, c.CentroidLon, err)
			return
		}
		permitResult = found
	}()
	go func() {
		defer wg.Done()
		if o.rainfallCorr == nil {
			return
		}
		rainfallResult = o.rainfallCorr.Summarise(rainfallReadings, c.CentroidLat, c.CentroidLon, o.enrich.RainfallCorrelationRadiusKM, o.enrich.RainfallWindow, c.WindowEnd)
	}()
	wg.Wait()

	return enrichedCluster{cluster: c, permits: permitResult, rainfall: rainfallResult}
}

func (o *Orchestrator) stageCompose(ctx context.Context, enriched []enrichedCluster, runID string) []model.Incident {
	start := time.Now()
	_, span := stageSpan(ctx, "COMPOSE")
	defer func() {
		span.End()
		o.observeStage("COMPOSE", start)
	}()

	incidents := make([]model.Incident, 0, len(enriched))
	for _, e := range enriched {
		incident, err := o.composer.Compose(e.cluster, e.permits, e.rainfall, runID)
		if err != nil {
			o.logger.Printf("compose failed for cluster at (%.4f,%.4f): %v", e.cluster.CentroidLat, e.cluster.CentroidLon, err)
			span.RecordError(err)
			continue
		}
		incidents = append(incidents, incident)
	}
	return incidents
}

// stagePersist calls C10 sequentially per incident (it is the
// authoritative dedup gate) and, only for incidents that were newly
// stored, fans C8 and C9 out in parallel. Duplicate incidents skip C8/C9
// entirely, per spec.md §4.12 step 7.
func (o *Orchestrator) stagePersist(ctx context.Context, incidents []model.Incident, entry *model.AgentRunLog) {
	start := time.Now()
	_, span := stageSpan(ctx, "PERSIST")
	defer func() {
		span.End()
		o.observeStage("PERSIST", start)
	}()

	for _, incident := range incidents {
		stored, effectiveID, err := o.incidents.StoreIfNew(ctx, incident)
		if err != nil {
			entry.Errors = append(entry.Errors, model.StageError{Stage: "PERSIST", Message: err.Error()})
			if o.m != nil {
				o.m.StageErrors.WithLabelValues("PERSIST").Inc()
			}
			span.RecordError(err)
			continue
		}
		entry.DocumentStoreWrites++

		if !stored {
			entry.IncidentsDuplicate++
			entry.IncidentIDsDuplicate = append(entry.IncidentIDsDuplicate, effectiveID)
			if o.m != nil {
				o.m.IncidentsDup.Inc()
			}
			continue
		}

		entry.IncidentsCreated++
		entry.IncidentIDsCreated = append(entry.IncidentIDsCreated, incident.IncidentID)
		if o.m != nil {
			o.m.IncidentsCreated.Inc()
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if o.vector == nil {
				return
			}
			entry.SimilaritySearches++
			if err := o.vector.EmbedAndStore(ctx, incident.IncidentID, incident.SummaryText); err != nil {
				o.logger.Printf("vector store failed for incident %s: %v", incident.IncidentID, err)
				entry.Errors = append(entry.Errors, model.StageError{
					Stage:   "PERSIST",
					Message: fmt.Sprintf("vector store for incident %s: %v", incident.IncidentID, err),
				})
				return
			}
			entry.VectorStoreWrites++
		}()
		go func() {
			defer wg.Done()
			if o.graph == nil {
				return
			}
			if err := o.graph.Ingest(ctx, incident); err != nil {
				o.logger.Printf("graph ingest failed for incident %s: %v", incident.IncidentID, err)
				return
			}
			entry.GraphStoreWrites++
		}()
		wg.Wait()
	}
}
