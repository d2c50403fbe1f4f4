package similarity

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/riverwatch/riverwatch/internal/model"
)

// PGVectorIndex is the production similarity backend: PostgreSQL with the
// pgvector extension, accessed through lib/pq exactly as the teacher's
// run-embedding store does (cosine-distance `<=>` operator, ON CONFLICT
// DO NOTHING for idempotence).
type PGVectorIndex struct {
	db       *sql.DB
	embedder Embedder
}

// NewPGVectorIndex builds a PGVectorIndex.
func NewPGVectorIndex(db *sql.DB, embedder Embedder) *PGVectorIndex {
	return &PGVectorIndex{db: db, embedder: embedder}
}

// EmbedAndStore is idempotent by incident_id: a row already present for
// incidentID short-circuits before any embedding-service call.
func (p *PGVectorIndex) EmbedAndStore(ctx context.Context, incidentID, summaryText string) error {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM incident_embeddings WHERE incident_id = $1)`, incidentID).Scan(&exists)
	if err != nil {
		return model.ErrStoreUnavailable{Store: "similarity", Err: err}
	}
	if exists {
		return nil
	}

	vector, err := p.embedder.EmbedOne(ctx, summaryText)
	if err != nil {
		return model.ErrEmbeddingFailure{IncidentID: incidentID, Err: err}
	}

	literal, err := encodeVectorLiteral(vector)
	if err != nil {
		return model.ErrEmbeddingFailure{IncidentID: incidentID, Err: err}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO incident_embeddings (incident_id, summary, embedding, created_at)
		VALUES ($1, $2, $3::vector, NOW())
		ON CONFLICT (incident_id) DO NOTHING
	`, incidentID, summaryText, literal)
	if err != nil {
		return model.ErrStoreUnavailable{Store: "similarity", Err: err}
	}
	return nil
}

// Query embeds text and returns the k nearest incidents by cosine
// similarity, filtered to those at or above minScore.
func (p *PGVectorIndex) Query(ctx context.Context, text string, k int, minScore float64) ([]Match, error) {
	vector, err := p.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	literal, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT incident_id, 1 - (embedding <=> $1::vector) AS score
		FROM incident_embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, literal, k)
	if err != nil {
		return nil, model.ErrStoreUnavailable{Store: "similarity", Err: err}
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.IncidentID, &m.Score); err != nil {
			return nil, model.ErrStoreUnavailable{Store: "similarity", Err: err}
		}
		if m.Score >= minScore {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}
