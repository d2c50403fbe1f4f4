package similarity

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/riverwatch/riverwatch/internal/model"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// indexedDoc is the record bleve indexes and this package keeps metadata
// for, mirroring the teacher's session DocChunk.
type indexedDoc struct {
	IncidentID string `json:"incident_id"`
	Summary    string `json:"summary"`
}

type hit struct {
	incidentID string
	score      float64
	rank       int
}

// BleveMemoryIndex is an in-process, dependency-light Index backend for
// tests and for storage.similarity.backend "bleve": a blevesearch/bleve keyword index fused
// with brute-force cosine vector search via reciprocal-rank fusion,
// grounded on the teacher's session_object.Session (Bm25Search,
// VectorSearch, FuseRRF). It enforces the same incident_id uniqueness
// contract as PGVectorIndex.
type BleveMemoryIndex struct {
	mu       sync.RWMutex
	bleve    bleve.Index
	vectors  map[string][]float32
	summary  map[string]string
	embedder Embedder
}

// NewBleveMemoryIndex builds an in-memory BleveMemoryIndex.
func NewBleveMemoryIndex(embedder Embedder) (*BleveMemoryIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &BleveMemoryIndex{
		bleve:    idx,
		vectors:  make(map[string][]float32),
		summary:  make(map[string]string),
		embedder: embedder,
	}, nil
}

// EmbedAndStore is idempotent by incidentID: an existing entry
// short-circuits before the embedder is called.
func (b *BleveMemoryIndex) EmbedAndStore(ctx context.Context, incidentID, summaryText string) error {
	b.mu.RLock()
	_, exists := b.vectors[incidentID]
	b.mu.RUnlock()
	if exists {
		return nil
	}

	vector, err := b.embedder.EmbedOne(ctx, summaryText)
	if err != nil {
		return model.ErrEmbeddingFailure{IncidentID: incidentID, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.vectors[incidentID]; exists {
		return nil
	}
	if err := b.bleve.Index(incidentID, indexedDoc{IncidentID: incidentID, Summary: summaryText}); err != nil {
		return err
	}
	b.vectors[incidentID] = vector
	b.summary[incidentID] = summaryText
	return nil
}

// Query fuses BM25 keyword search over summary text with brute-force
// cosine vector search, via reciprocal-rank fusion. Match.Score is the
// fused reciprocal-rank score, not a cosine similarity, and minScore is
// compared against that fused score.
func (b *BleveMemoryIndex) Query(ctx context.Context, text string, k int, minScore float64) ([]Match, error) {
	if k <= 0 {
		k = 5
	}

	keywordHits, err := b.bm25Search(text, k)
	if err != nil {
		return nil, err
	}

	vector, err := b.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	vectorHits := b.vectorSearch(vector, k)

	fused := fuseRRF(keywordHits, vectorHits, k)

	out := make([]Match, 0, len(fused))
	for _, h := range fused {
		if h.score >= minScore {
			out = append(out, Match{IncidentID: h.incidentID, Score: h.score})
		}
	}
	return out, nil
}

func (b *BleveMemoryIndex) bm25Search(q string, k int) ([]hit, error) {
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)

	b.mu.RLock()
	res, err := b.bleve.Search(req)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]hit, 0, len(res.Hits))
	for i, h := range res.Hits {
		if len(out) >= k {
			break
		}
		out = append(out, hit{incidentID: h.ID, score: h.Score, rank: i + 1})
	}
	return out, nil
}

func (b *BleveMemoryIndex) vectorSearch(query []float32, k int) []hit {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scored := make([]hit, 0, len(b.vectors))
	for id, v := range b.vectors {
		scored = append(scored, hit{incidentID: id, score: cosine(query, v)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]hit, 0, k)
	for i, s := range scored {
		if len(out) >= k {
			break
		}
		s.rank = i + 1
		out = append(out, s)
	}
	return out
}

func fuseRRF(a, b []hit, k int) []hit {
	agg := make(map[string]float64)
	order := make(map[string]hit)
	add := func(list []hit) {
		for _, h := range list {
			agg[h.incidentID] += 1.0 / float64(rrfK+h.rank)
			order[h.incidentID] = h
		}
	}
	add(a)
	add(b)

	fused := make([]hit, 0, len(agg))
	for id, score := range agg {
		h := order[id]
		h.score = score
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool { return fused[i].score > fused[j].score })

	if k < len(fused) {
		fused = fused[:k]
	}
	for i := range fused {
		fused[i].rank = i + 1
	}
	return fused
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
