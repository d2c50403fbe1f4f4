// Package similarity implements the similarity index stage (C8): embed
// and store an Incident's summary text, and query for nearest neighbours
// by cosine similarity. Both implementations enforce uniqueness on
// incident_id so embed_and_store is safely re-runnable.
package similarity

import "context"

// Match is one result of a Query call.
type Match struct {
	IncidentID string
	Score      float64
}

// Embedder produces a fixed-dimension vector for a piece of text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Index is the similarity backend contract shared by PGVectorIndex and
// BleveMemoryIndex.
type Index interface {
	// EmbedAndStore is idempotent by incidentID: if a row already exists
	// for this id, it is a no-op and the embedding service is not called.
	EmbedAndStore(ctx context.Context, incidentID, summaryText string) error
	// Query returns up to k neighbours with score >= minScore, sorted by
	// score descending. PGVectorIndex scores by cosine similarity;
	// BleveMemoryIndex scores by reciprocal-rank fusion (see its Query).
	Query(ctx context.Context, text string, k int, minScore float64) ([]Match, error)
}
