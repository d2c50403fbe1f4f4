// Package orchestrator implements the cycle state machine (C12):
// START, FETCH, DETECT, CLUSTER, ENRICH, COMPOSE, PERSIST, LOG, END.
// It owns every intermediate value for the duration of one cycle; once an
// Incident is handed to the stores, they own their own projections.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/riverwatch/riverwatch/internal/cluster"
	"github.com/riverwatch/riverwatch/internal/compose"
	"github.com/riverwatch/riverwatch/internal/detect"
	"github.com/riverwatch/riverwatch/internal/fetch"
	"github.com/riverwatch/riverwatch/internal/graphstore"
	"github.com/riverwatch/riverwatch/internal/incidentstore"
	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/permits"
	"github.com/riverwatch/riverwatch/internal/rainfall"
	"github.com/riverwatch/riverwatch/internal/runlog"
	"github.com/riverwatch/riverwatch/internal/similarity"
	"github.com/riverwatch/riverwatch/internal/telemetry"
)

// EnrichConfig pins the ENRICH stage's radii, windows and fan-out bound.
type EnrichConfig struct {
	PermitSearchRadiusKM        float64
	RainfallCorrelationRadiusKM float64
	RainfallWindow              time.Duration
	MaxClusterFanout            int
}

// Orchestrator drives one cycle end-to-end and composes the AgentRunLog.
// It holds no state between cycles other than its collaborators and Clock.
type Orchestrator struct {
	logger *log.Logger
	clock  clockwork.Clock
	m      *telemetry.Metrics

	fetchers     []fetch.Fetcher
	fetchTimeout time.Duration

	detector  detect.Detector
	clusterer *cluster.Clusterer

	permitSearcher    *permits.Searcher
	rainfallCorr      *rainfall.Correlator
	enrich            EnrichConfig

	composer *compose.Composer

	incidents *incidentstore.Store
	vector    similarity.Index
	graph     graphstore.Ingestor

	runlog *runlog.Recorder
}

// New builds an Orchestrator from its fully-constructed collaborators.
// Callers (internal/app) are responsible for wiring config into each
// collaborator; the orchestrator itself holds no config.Config reference.
func New(
	logger *log.Logger,
	clock clockwork.Clock,
	m *telemetry.Metrics,
	fetchers []fetch.Fetcher,
	fetchTimeout time.Duration,
	detector detect.Detector,
	clusterer *cluster.Clusterer,
	permitSearcher *permits.Searcher,
	rainfallCorr *rainfall.Correlator,
	enrich EnrichConfig,
	composer *compose.Composer,
	incidents *incidentstore.Store,
	vector similarity.Index,
	graph graphstore.Ingestor,
	recorder *runlog.Recorder,
) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = telemetry.NewComponentLogger("ORCH")
	}
	return &Orchestrator{
		logger:         logger,
		clock:          clock,
		m:              m,
		fetchers:       fetchers,
		fetchTimeout:   fetchTimeout,
		detector:       detector,
		clusterer:      clusterer,
		permitSearcher: permitSearcher,
		rainfallCorr:   rainfallCorr,
		enrich:         enrich,
		composer:       composer,
		incidents:      incidents,
		vector:         vector,
		graph:          graph,
		runlog:         recorder,
	}
}

// RunCycle drives one full cycle and never panics or returns an error to
// the caller: a catastrophic failure is caught, recorded in the run log
// as an aborted cycle, and swallowed, so the scheduler always proceeds to
// the next tick. The returned AgentRunLog is the same one persisted by
// the LOG stage, useful for tests and for the `once` CLI subcommand.
func (o *Orchestrator) RunCycle(ctx context.Context) (entry model.AgentRunLog) {
	ctx, span := telemetry.Tracer.Start(ctx, "cycle")
	defer span.End()

	entry = model.AgentRunLog{
		RunID:                 uuid.NewString(),
		StartedAt:             o.clock.Now().UTC(),
		ReadingsFetched:       map[model.Source]int{},
		ExternalAPICallCounts: map[string]int{},
	}
	span.SetAttributes(attribute.String("run_id", entry.RunID))
	if o.m != nil {
		o.m.CyclesStarted.Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			o.abort(&entry, fmt.Sprintf("panic: %v", r))
			span.SetStatus(codes.Error, "cycle panicked")
		}
		entry.DurationSeconds = o.clock.Now().UTC().Sub(entry.StartedAt).Seconds()
		if o.m != nil {
			o.m.CycleDuration.Observe(entry.DurationSeconds)
			if entry.Aborted {
				o.m.CyclesAborted.Inc()
			} else {
				o.m.CyclesSucceeded.Inc()
			}
		}
		o.runlog.Record(context.Background(), entry)
	}()

	readings := o.stageFetch(ctx, &entry)

	anomalies := o.stageDetect(ctx, readings)
	clusters := o.stageCluster(ctx, anomalies, &entry)
	if len(clusters) == 0 {
		return entry
	}
	if o.checkCancelled(ctx, &entry) {
		return entry
	}

	rainfallReadings := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Source == model.SourceRainfall {
			rainfallReadings = append(rainfallReadings, r)
		}
	}
	enriched := o.stageEnrich(ctx, clusters, rainfallReadings)
	if o.checkCancelled(ctx, &entry) {
		return entry
	}

	incidents := o.stageCompose(ctx, enriched, entry.RunID)
	if o.checkCancelled(ctx, &entry) {
		return entry
	}

	o.stagePersist(ctx, incidents, &entry)
	o.checkCancelled(ctx, &entry)

	return entry
}

// checkCancelled marks entry as CycleAborted if ctx has been cancelled or
// its deadline has passed, per spec.md §7 (CycleAborted is reserved for
// cancellation/deadline, distinct from a fetcher's TransientUpstream or
// TerminalUpstream stage error). Work already persisted up to this point
// stays durable; the cycle simply stops advancing through further stages.
func (o *Orchestrator) checkCancelled(ctx context.Context, entry *model.AgentRunLog) bool {
	if ctx.Err() == nil {
		return false
	}
	o.abort(entry, model.ErrCycleAborted{Cause: ctx.Err().Error()}.Error())
	return true
}

// abort marks entry as a CycleAborted run: everything already persisted
// (composed incidents already written to incidentstore/vector/graph)
// remains durable, matching spec.md's "partial run log" requirement.
func (o *Orchestrator) abort(entry *model.AgentRunLog, cause string) {
	entry.Aborted = true
	entry.AbortCause = cause
	entry.Errors = append(entry.Errors, model.StageError{Stage: "CYCLE", Message: cause})
	o.logger.Printf("cycle %s aborted: %s", entry.RunID, cause)
}

func stageSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return telemetry.Tracer.Start(ctx, name)
}

func (o *Orchestrator) observeStage(stage string, start time.Time) {
	if o.m == nil {
		return
	}
	o.m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
