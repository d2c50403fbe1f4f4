// Package telemetry carries the ambient observability stack: Prometheus
// metrics, an OpenTelemetry tracer, component-prefixed loggers, and the
// health/metrics HTTP surface. Nothing here is domain logic.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms recorded by the
// cycle orchestrator and scheduler.
type Metrics struct {
	CyclesStarted   prometheus.Counter
	CyclesSucceeded prometheus.Counter
	CyclesFailed    prometheus.Counter
	CyclesAborted   prometheus.Counter
	CycleDuration   prometheus.Histogram

	StageDuration *prometheus.HistogramVec // labels: stage
	StageErrors   *prometheus.CounterVec   // labels: stage

	ReadingsFetched  *prometheus.CounterVec // labels: source
	AnomaliesFound   prometheus.Counter
	ClustersFound    prometheus.Histogram
	IncidentsCreated prometheus.Counter
	IncidentsDup     prometheus.Counter

	SchedulerLockContended prometheus.Counter
}

// NewMetrics builds and registers Metrics against reg. internal/app
// passes a private prometheus.NewRegistry(), which the /metrics endpoint
// then serves; a fresh registry per call also avoids
// duplicate-registration panics across tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "cycles_started_total",
			Help:      "Total cycles begun by the orchestrator.",
		}),
		CyclesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "cycles_succeeded_total",
			Help:      "Total cycles that reached END without aborting.",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "cycles_failed_total",
			Help:      "Total cycles that recovered from a stage panic/error but did not abort.",
		}),
		CyclesAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "cycles_aborted_total",
			Help:      "Total cycles marked aborted (cancellation, deadline or a recovered panic).",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riverwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full START-to-END cycle.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riverwatch",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single cycle stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "stage_errors_total",
			Help:      "Errors recorded by stage.",
		}, []string{"stage"}),
		ReadingsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "readings_fetched_total",
			Help:      "Readings fetched by upstream source.",
		}, []string{"source"}),
		AnomaliesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "anomalies_found_total",
			Help:      "Threshold-breaching readings detected.",
		}),
		ClustersFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riverwatch",
			Name:      "clusters_found",
			Help:      "Number of clusters produced per cycle.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		IncidentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "incidents_created_total",
			Help:      "Incidents that were new (not a dedup hit).",
		}),
		IncidentsDup: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "incidents_duplicate_total",
			Help:      "Incidents that matched an existing content_hash within the dedup window.",
		}),
		SchedulerLockContended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riverwatch",
			Name:      "scheduler_lock_contended_total",
			Help:      "Ticks where the distributed lock was already held by another instance.",
		}),
	}

	reg.MustRegister(
		m.CyclesStarted, m.CyclesSucceeded, m.CyclesFailed, m.CyclesAborted, m.CycleDuration,
		m.StageDuration, m.StageErrors,
		m.ReadingsFetched, m.AnomaliesFound, m.ClustersFound,
		m.IncidentsCreated, m.IncidentsDup,
		m.SchedulerLockContended,
	)
	return m
}

// NewMetricsForTesting registers against a fresh private registry so
// repeated construction across test files never panics on duplicate
// registration.
func NewMetricsForTesting() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
