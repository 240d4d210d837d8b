package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/pkg/store"
)

func entry(id string, vec ...float32) models.IndexEntry {
	return models.IndexEntry{
		Chunk:     models.Chunk{ID: id, UnitID: id, Text: "text of " + id, Unit: models.UnitMeta{Book: "1", Chapter: 1}},
		Embedding: vec,
	}
}

func testEntries() []models.IndexEntry {
	return []models.IndexEntry{
		entry("a", 1, 0, 0),
		entry("b", 0.8, 0.6, 0),
		entry("c", 0, 1, 0),
		entry("d", 0, 0, 1),
		entry("zero", 0, 0, 0),
	}
}

func TestMemoryIndex_Search(t *testing.T) {
	idx := store.NewMemoryIndex(models.IndexManifest{Dimension: 3}, testEntries())
	ctx := context.Background()

	hits, err := idx.Search(ctx, []float32{2, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "b", hits[1].ChunkID)
	assert.InDelta(t, 0.8, hits[1].Similarity, 1e-6)
	assert.Equal(t, "text of a", hits[0].Text)
	assert.Equal(t, 1, hits[0].Unit.Chapter)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}
}

func TestMemoryIndex_NeverPads(t *testing.T) {
	idx := store.NewMemoryIndex(models.IndexManifest{}, testEntries())

	hits, err := idx.Search(context.Background(), []float32{0, 0, 1}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, idx.Len())

	seen := make(map[string]bool)
	for _, h := range hits {
		assert.False(t, seen[h.ChunkID], "duplicate hit %s", h.ChunkID)
		seen[h.ChunkID] = true
	}
	assert.Equal(t, "d", hits[0].ChunkID)
}

func TestMemoryIndex_EdgeCases(t *testing.T) {
	ctx := context.Background()
	idx := store.NewMemoryIndex(models.IndexManifest{}, testEntries())

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = idx.Search(ctx, []float32{1, 0}, 2)
	assert.Error(t, err, "dimension mismatch")

	empty := store.NewMemoryIndex(models.IndexManifest{}, nil)
	hits, err = empty.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
