package types

import (
	"context"

	"github.com/saymasiddiquie/dscpl/internal/models"
)

// Embedder turns text into fixed-length vectors. Queries must be embedded with
// the same model that built the index they are searched against.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// VectorIndex is a loaded, searchable index. Search is safe for concurrent use.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) ([]models.Hit, error)
	Len() int
	Close()
}

// IndexStore persists snapshots and loads them back as a VectorIndex.
type IndexStore interface {
	// Save replaces the stored index as a whole.
	Save(ctx context.Context, snapshot models.IndexSnapshot) (VectorIndex, error)
	// Load fails with *models.IndexLoadError when no usable index exists.
	Load(ctx context.Context) (VectorIndex, error)
	// Location identifies the index target, such as a path or a table.
	Location() string
}

// Searcher runs top-k retrieval for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) models.RetrievalResult
}
