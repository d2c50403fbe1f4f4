// Package app wires one fully-constructed App from a config.Config: every
// store connection, fetcher, enrichment collaborator, and the orchestrator
// and scheduler that sit on top of them. cmd/riverwatchd is a thin cobra
// shell around this package, mirroring the teacher's internal/server.Run
// top-level dependency-injection style.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/jonboulle/clockwork"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/riverwatch/riverwatch/config"
	"github.com/riverwatch/riverwatch/internal/cluster"
	"github.com/riverwatch/riverwatch/internal/compose"
	"github.com/riverwatch/riverwatch/internal/detect"
	"github.com/riverwatch/riverwatch/internal/embed"
	"github.com/riverwatch/riverwatch/internal/fetch"
	"github.com/riverwatch/riverwatch/internal/graphstore"
	"github.com/riverwatch/riverwatch/internal/httpx"
	"github.com/riverwatch/riverwatch/internal/incidentstore"
	"github.com/riverwatch/riverwatch/internal/llm"
	"github.com/riverwatch/riverwatch/internal/orchestrator"
	"github.com/riverwatch/riverwatch/internal/permits"
	"github.com/riverwatch/riverwatch/internal/rainfall"
	"github.com/riverwatch/riverwatch/internal/runlog"
	"github.com/riverwatch/riverwatch/internal/scheduler"
	"github.com/riverwatch/riverwatch/internal/similarity"
	"github.com/riverwatch/riverwatch/internal/stationstore"
	"github.com/riverwatch/riverwatch/internal/telemetry"
)

// App holds every long-lived collaborator plus a Close to release them.
type App struct {
	Cfg          *config.Config
	DB           *sql.DB
	Redis        *redis.Client
	Neo4jDriver  neo4j.DriverWithContext
	Metrics      *telemetry.Metrics
	Registry     *prometheus.Registry
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler

	closers []func() error
}

// Build assembles an App from cfg. It opens real network connections
// (Postgres, optionally Redis and Neo4j) but does not start the
// scheduler loop or the telemetry HTTP server — callers decide when to
// start those via App.Scheduler.Run and the telemetry package.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Cfg: cfg}

	db, err := sql.Open("postgres", cfg.Storage.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.Storage.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Storage.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Storage.Postgres.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	a.DB = db
	a.addCloser(db.Close)

	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		a.Redis = rdb
		a.addCloser(rdb.Close)
	}

	var graphIngestor graphstore.Ingestor
	if cfg.Storage.Neo4j.URI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Storage.Neo4j.URI, neo4j.BasicAuth(cfg.Storage.Neo4j.Username, cfg.Storage.Neo4j.Password, ""))
		if err != nil {
			return nil, fmt.Errorf("open neo4j: %w", err)
		}
		a.Neo4jDriver = driver
		a.addCloser(func() error { return driver.Close(ctx) })
		graphIngestor = graphstore.NewNeo4jIngestor(driver)
	} else {
		graphIngestor = graphstore.NewMemoryIngestor()
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	a.Registry = registry
	a.Metrics = metrics

	stations := stationstore.New(db)

	fetchers := []fetch.Fetcher{
		fetch.NewFloodFetcher(toFetcherConfig(cfg.Upstream.Flood), stations),
		fetch.NewHydrologyFetcher(toFetcherConfig(cfg.Upstream.Hydrology), stations),
		fetch.NewRainfallFetcher(toFetcherConfig(cfg.Upstream.Rainfall), stations),
	}

	detector := detect.NewThresholdDetector(cfg.Anomaly.Thresholds)
	clusterer := cluster.New(cfg.Cluster.SpatialRadiusKM, cfg.Cluster.TemporalWindowHours, cfg.Cluster.MinClusterSize)

	permitsClient := httpx.New(cfg.Upstream.Permits.Timeout, cfg.Upstream.Permits.MaxRetries, cfg.Upstream.Permits.Backoff)
	var geocodeClient *permits.GeocodeClient
	if cfg.Upstream.Geocode.BaseURL != "" {
		geocodeHTTP := httpx.New(cfg.Upstream.Geocode.Timeout, cfg.Upstream.Geocode.MaxRetries, cfg.Upstream.Geocode.Backoff)
		geocodeClient = permits.NewGeocodeClient(geocodeHTTP, cfg.Upstream.Geocode.BaseURL)
	}
	permitSearcher := permits.NewSearcher(permitsClient, cfg.Upstream.Permits.BaseURL, geocodeClient)
	rainfallCorr := rainfall.New(cfg.Enrich.RainfallHeavyMM, cfg.Enrich.RainfallModerateMM)

	var summariser compose.Summariser
	if cfg.Compose.Summariser == "llm" {
		llmHTTP := httpx.New(cfg.Upstream.Embedding.Timeout, cfg.Upstream.Embedding.MaxRetries, cfg.Upstream.Embedding.Backoff)
		llmClient := llm.New(llmHTTP, cfg.Upstream.Embedding.BaseURL, cfg.Upstream.Embedding.APIKey, "gpt-4o-mini", 0.2, 512)
		summariser = compose.NewLLMSummariser(llmClient)
	} else {
		summariser = compose.NewTemplateSummariser()
	}
	composer := compose.New(summariser, cfg.Anomaly.Priority.High, cfg.Anomaly.Priority.Medium)

	var vectorIndex similarity.Index
	embedHTTP := httpx.New(cfg.Upstream.Embedding.Timeout, cfg.Upstream.Embedding.MaxRetries, cfg.Upstream.Embedding.Backoff)
	embedder := embed.New(embedHTTP, cfg.Upstream.Embedding.BaseURL, cfg.Upstream.Embedding.APIKey, "text-embedding-3-small", cfg.Storage.Similarity.EmbeddingDim)
	switch cfg.Storage.Similarity.Backend {
	case "bleve":
		idx, err := similarity.NewBleveMemoryIndex(embedder)
		if err != nil {
			return nil, fmt.Errorf("build bleve index: %w", err)
		}
		vectorIndex = idx
	default:
		vectorIndex = similarity.NewPGVectorIndex(db, embedder)
	}

	incidents := incidentstore.New(db, cfg.Compose.DedupWindowHours)
	runlogRecorder := runlog.New(db, telemetry.NewComponentLogger("RUNLOG"))

	clock := clockwork.NewRealClock()
	orch := orchestrator.New(
		telemetry.NewComponentLogger("ORCH"),
		clock,
		metrics,
		fetchers,
		time.Duration(cfg.Schedule.DeadlineSeconds)*time.Second,
		detector,
		clusterer,
		permitSearcher,
		rainfallCorr,
		orchestrator.EnrichConfig{
			PermitSearchRadiusKM:        cfg.Enrich.PermitSearchRadiusKM,
			RainfallCorrelationRadiusKM: cfg.Enrich.RainfallCorrelationRadiusKM,
			RainfallWindow:              time.Duration(cfg.Enrich.RainfallWindowHours) * time.Hour,
			MaxClusterFanout:            cfg.Enrich.MaxClusterFanout,
		},
		composer,
		incidents,
		vectorIndex,
		graphIngestor,
		runlogRecorder,
	)
	a.Orchestrator = orch

	a.Scheduler = scheduler.New(orch, clock, rdb, scheduler.Config{
		IntervalSeconds: cfg.Schedule.IntervalSeconds,
		DeadlineSeconds: cfg.Schedule.DeadlineSeconds,
		CronExpr:        cfg.Schedule.CronExpr,
		LockKey:         cfg.Schedule.LockKey,
		LockTTLSeconds:  cfg.Schedule.LockTTLSeconds,
	}, metrics, telemetry.NewComponentLogger("SCHED"))

	return a, nil
}

// CheckReadiness implements telemetry.ReadinessChecker.
func (a *App) CheckReadiness(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

// Close releases every connection opened by Build, logging but not
// failing on individual close errors.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("app: close error: %v", err)
		}
	}
}

func (a *App) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

func toFetcherConfig(u config.UpstreamServiceConfig) fetch.FetcherConfig {
	return fetch.FetcherConfig{
		BaseURL:    u.BaseURL,
		Timeout:    u.Timeout,
		MaxRetries: u.MaxRetries,
		Backoff:    u.Backoff,
	}
}
