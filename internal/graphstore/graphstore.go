// Package graphstore implements the graph ingestion stage (C9): idempotent
// MERGE of Incident, Station, and Permit nodes plus their relationships.
package graphstore

import (
	"context"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Ingestor writes an Incident's relationship view into the graph store.
// Ingest must be idempotent: calling it n times for the same incident
// yields the same node/edge counts as calling it once.
type Ingestor interface {
	Ingest(ctx context.Context, incident model.Incident) error
}
