package similarity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/similarity"
)

// fakeEmbedder returns a fixed vector per distinct text, deterministic
// enough for the RRF fusion to be exercised without a real embedding
// service.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) Dim() int { return 3 }

func TestBleveMemoryIndex_EmbedAndStoreIsIdempotent(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"flood near river": {1, 0, 0}}}
	idx, err := similarity.NewBleveMemoryIndex(embedder)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.EmbedAndStore(ctx, "inc-1", "flood near river"))
	require.NoError(t, idx.EmbedAndStore(ctx, "inc-1", "flood near river"))

	assert.Equal(t, 1, embedder.calls)
}

func TestBleveMemoryIndex_QueryReturnsStoredIncident(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"flood near river": {1, 0, 0},
		"flood warning":     {1, 0, 0},
	}}
	idx, err := similarity.NewBleveMemoryIndex(embedder)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.EmbedAndStore(ctx, "inc-1", "flood near river"))

	matches, err := idx.Query(ctx, "flood warning", 5, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "inc-1", matches[0].IncidentID)
}

func TestBleveMemoryIndex_QueryExcludesBelowMinScore(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"flood near river": {1, 0, 0},
		"flood warning":     {1, 0, 0},
	}}
	idx, err := similarity.NewBleveMemoryIndex(embedder)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.EmbedAndStore(ctx, "inc-1", "flood near river"))

	matches, err := idx.Query(ctx, "flood warning", 5, 1.0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
