// Package incidentstore implements the durable document store stage
// (C10): idempotent store_if_new with a content_hash dedup window, plus
// the recent() query the run-log dashboard uses.
package incidentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/riverwatch/riverwatch/internal/model"
)

const pgUniqueViolation = "23505"

// Store is the Postgres-backed IncidentStore.
type Store struct {
	db               *sql.DB
	dedupWindowHours int
}

// New builds a Store. dedupWindowHours is the dedup window (spec.md §3
// default 24h).
func New(db *sql.DB, dedupWindowHours int) *Store {
	if dedupWindowHours <= 0 {
		dedupWindowHours = 24
	}
	return &Store{db: db, dedupWindowHours: dedupWindowHours}
}

// StoreIfNew writes incident if no existing row shares its content_hash
// within the dedup window; otherwise it returns the existing row's
// incident_id. The unique index on content_hash makes the insert-and-
// catch-on-violation path race-safe: concurrent calls with the same hash
// always leave exactly one row, mirroring the teacher's
// ClaimIdempotency insert-with-ON-CONFLICT pattern.
func (s *Store) StoreIfNew(ctx context.Context, incident model.Incident) (stored bool, effectiveID string, err error) {
	existingID, found, err := s.findWithinWindow(ctx, incident.ContentHash, incident.CreatedAt)
	if err != nil {
		return false, "", err
	}
	if found {
		return false, existingID, nil
	}

	if err := s.insert(ctx, incident); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == pgUniqueViolation {
			existingID, found, lookupErr := s.findWithinWindow(ctx, incident.ContentHash, incident.CreatedAt)
			if lookupErr != nil {
				return false, "", lookupErr
			}
			if found {
				return false, existingID, nil
			}
			return false, "", fmt.Errorf("unique violation on content_hash but no row found: %w", err)
		}
		return false, "", model.ErrStoreUnavailable{Store: "incidentstore", Err: err}
	}

	return true, incident.IncidentID, nil
}

func (s *Store) findWithinWindow(ctx context.Context, contentHash string, createdAt time.Time) (incidentID string, found bool, err error) {
	windowStart := createdAt.Add(-time.Duration(s.dedupWindowHours) * time.Hour)
	err = s.db.QueryRowContext(ctx, `
		SELECT incident_id FROM incidents
		WHERE content_hash = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC
		LIMIT 1
	`, contentHash, windowStart, createdAt).Scan(&incidentID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, model.ErrStoreUnavailable{Store: "incidentstore", Err: err}
	}
	return incidentID, true, nil
}

func (s *Store) insert(ctx context.Context, incident model.Incident) error {
	readingsJSON, err := json.Marshal(incident.Readings)
	if err != nil {
		return fmt.Errorf("marshal readings: %w", err)
	}
	permitsJSON, err := json.Marshal(incident.Permits)
	if err != nil {
		return fmt.Errorf("marshal permits: %w", err)
	}
	rainfallJSON, err := json.Marshal(incident.Rainfall)
	if err != nil {
		return fmt.Errorf("marshal rainfall: %w", err)
	}
	actionsJSON, err := json.Marshal(incident.SuggestedActions)
	if err != nil {
		return fmt.Errorf("marshal suggested_actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			incident_id, content_hash, created_at, priority, source_kind,
			centroid_lat, centroid_lon, summary_text, suggested_actions,
			readings, permits, rainfall, run_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		incident.IncidentID, incident.ContentHash, incident.CreatedAt, string(incident.Priority), string(incident.SourceKind),
		incident.CentroidLat, incident.CentroidLon, incident.SummaryText, actionsJSON,
		readingsJSON, permitsJSON, rainfallJSON, incident.RunID,
	)
	return err
}

// Recent returns incidents created at or after since, newest first,
// supporting the run-log dashboard; not on the hot path.
func (s *Store) Recent(ctx context.Context, since time.Time) ([]model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT incident_id, content_hash, created_at, priority, source_kind,
			centroid_lat, centroid_lon, summary_text, suggested_actions,
			readings, permits, rainfall, run_id
		FROM incidents
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`, since)
	if err != nil {
		return nil, model.ErrStoreUnavailable{Store: "incidentstore", Err: err}
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		var (
			inc                                       model.Incident
			priority, sourceKind                      string
			actionsJSON, readingsJSON, permitsJSON, rainfallJSON []byte
		)
		if err := rows.Scan(
			&inc.IncidentID, &inc.ContentHash, &inc.CreatedAt, &priority, &sourceKind,
			&inc.CentroidLat, &inc.CentroidLon, &inc.SummaryText, &actionsJSON,
			&readingsJSON, &permitsJSON, &rainfallJSON, &inc.RunID,
		); err != nil {
			return nil, model.ErrStoreUnavailable{Store: "incidentstore", Err: err}
		}
		inc.Priority = model.Priority(priority)
		inc.SourceKind = model.SourceKind(sourceKind)
		_ = json.Unmarshal(actionsJSON, &inc.SuggestedActions)
		_ = json.Unmarshal(readingsJSON, &inc.Readings)
		_ = json.Unmarshal(permitsJSON, &inc.Permits)
		_ = json.Unmarshal(rainfallJSON, &inc.Rainfall)
		out = append(out, inc)
	}
	return out, rows.Err()
}
