// Package stationstore resolves (source, station_id) pairs to coordinates.
// It is read-only from the core pipeline; population is an external,
// one-off bootstrap (see cmd/stationsync).
package stationstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Store resolves station identities to coordinates, backed by Postgres.
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// LookupBatch resolves every (source, station_id) pair in ids against the
// backing table in a single round trip. Missing keys are simply absent
// from the returned map. Returns model.ErrStoreUnavailable if the
// database cannot be reached; the caller does not retry this here.
func (s *Store) LookupBatch(ctx context.Context, source model.Source, ids []string) (map[string]model.Station, error) {
	out := make(map[string]model.Station, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, lat, lon, easting, northing, label
		FROM stations
		WHERE source = $1 AND station_id = ANY($2)
	`, string(source), pq.Array(ids))
	if err != nil {
		return nil, model.ErrStoreUnavailable{Store: "stationstore", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var st model.Station
		st.Source = source
		if err := rows.Scan(&st.StationID, &st.Lat, &st.Lon, &st.Easting, &st.Northing, &st.Label); err != nil {
			return nil, model.ErrStoreUnavailable{Store: "stationstore", Err: err}
		}
		out[st.StationID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, model.ErrStoreUnavailable{Store: "stationstore", Err: err}
	}
	return out, nil
}

// Upsert writes or updates a single station's coordinates, used only by
// cmd/stationsync's bootstrap import, never by the cycle pipeline.
func (s *Store) Upsert(ctx context.Context, st model.Station) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (source, station_id, lat, lon, easting, northing, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, station_id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			easting = EXCLUDED.easting,
			northing = EXCLUDED.northing,
			label = EXCLUDED.label
	`, string(st.Source), st.StationID, st.Lat, st.Lon, st.Easting, st.Northing, st.Label)
	if err != nil {
		return fmt.Errorf("upsert station %s/%s: %w", st.Source, st.StationID, err)
	}
	return nil
}
