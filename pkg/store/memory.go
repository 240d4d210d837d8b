package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/saymasiddiquie/dscpl/internal/models"
)

// MemoryIndex is an exact cosine-similarity index held in memory. It is
// immutable after construction and safe for concurrent searches.
type MemoryIndex struct {
	manifest  models.IndexManifest
	entries   []models.IndexEntry
	norms     []float64
	dimension int
}

func NewMemoryIndex(manifest models.IndexManifest, entries []models.IndexEntry) *MemoryIndex {
	idx := &MemoryIndex{
		manifest: manifest,
		entries:  entries,
		norms:    make([]float64, len(entries)),
	}
	for i, e := range entries {
		idx.norms[i] = norm(e.Embedding)
		if idx.dimension == 0 {
			idx.dimension = len(e.Embedding)
		}
	}
	return idx
}

func (m *MemoryIndex) Manifest() models.IndexManifest {
	return m.manifest
}

func (m *MemoryIndex) Len() int {
	return len(m.entries)
}

func (m *MemoryIndex) Close() {}

// Search returns up to k entries ordered by descending cosine similarity.
// Equal scores keep index order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), m.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qnorm := norm(query)
	order := make([]int, len(m.entries))
	scores := make([]float64, len(m.entries))
	for i, e := range m.entries {
		order[i] = i
		if qnorm == 0 || m.norms[i] == 0 {
			continue
		}
		scores[i] = dot(query, e.Embedding) / (qnorm * m.norms[i])
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if k > len(order) {
		k = len(order)
	}
	hits := make([]models.Hit, 0, k)
	for _, i := range order[:k] {
		c := m.entries[i].Chunk
		hits = append(hits, models.Hit{
			ChunkID:    c.ID,
			Text:       c.Text,
			Similarity: scores[i],
			Unit:       c.Unit,
		})
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
