// Package runlog implements the run-log recorder stage (C11): one JSONB
// row per cycle, never failing the cycle on write error.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Recorder persists AgentRunLog rows to Postgres.
type Recorder struct {
	db     *sql.DB
	logger *log.Logger
}

// New builds a Recorder. logger receives write failures; a nil logger
// falls back to the standard logger, matching the teacher's
// component-prefixed convention.
func New(db *sql.DB, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// Record writes a single row. Failures are logged to stderr only, per
// spec.md §4.11 — the cycle's return value is never affected.
func (r *Recorder) Record(ctx context.Context, entry model.AgentRunLog) {
	if err := r.record(ctx, entry); err != nil {
		r.logger.Printf("[RUNLOG] failed to persist run log for run_id=%s: %v", entry.RunID, err)
	}
}

func (r *Recorder) record(ctx context.Context, entry model.AgentRunLog) error {
	readingsJSON, err := json.Marshal(entry.ReadingsFetched)
	if err != nil {
		return fmt.Errorf("marshal readings_fetched: %w", err)
	}
	clustersJSON, err := json.Marshal(entry.Clusters)
	if err != nil {
		return fmt.Errorf("marshal clusters: %w", err)
	}
	createdIDsJSON, err := json.Marshal(entry.IncidentIDsCreated)
	if err != nil {
		return fmt.Errorf("marshal incident_ids_created: %w", err)
	}
	dupIDsJSON, err := json.Marshal(entry.IncidentIDsDuplicate)
	if err != nil {
		return fmt.Errorf("marshal incident_ids_duplicate: %w", err)
	}
	errorsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	apiCountsJSON, err := json.Marshal(entry.ExternalAPICallCounts)
	if err != nil {
		return fmt.Errorf("marshal external_api_call_counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO run_logs (
			run_id, started_at, duration_seconds, stations_fetched,
			readings_fetched, clusters_found, clusters,
			similarity_searches, avg_similarity, best_similarity,
			incidents_created, incidents_duplicate,
			incident_ids_created, incident_ids_duplicate,
			document_store_writes, vector_store_writes, graph_store_writes,
			errors, external_api_call_counts, aborted, abort_cause
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
		)
	`,
		entry.RunID, entry.StartedAt, entry.DurationSeconds, entry.StationsFetched,
		readingsJSON, entry.ClustersFound, clustersJSON,
		entry.SimilaritySearches, entry.AvgSimilarity, entry.BestSimilarity,
		entry.IncidentsCreated, entry.IncidentsDuplicate,
		createdIDsJSON, dupIDsJSON,
		entry.DocumentStoreWrites, entry.VectorStoreWrites, entry.GraphStoreWrites,
		errorsJSON, apiCountsJSON, entry.Aborted, entry.AbortCause,
	)
	return err
}
