package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
)

type BuilderConfig struct {
	Embedder  types.Embedder
	Store     types.IndexStore
	BatchSize int
	// OnProgress is called after every embedded batch.
	OnProgress func(done, total int)
	Logger     *slog.Logger
}

// Builder embeds chunks and persists them as a complete index snapshot.
type Builder struct {
	config BuilderConfig
}

func NewBuilder(config BuilderConfig) *Builder {
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Builder{config: config}
}

// Build embeds every chunk, saves the snapshot through the store and returns
// the resulting index.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (types.VectorIndex, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to index")
	}

	start := time.Now()
	entries := make([]models.IndexEntry, 0, len(chunks))
	dimension := 0

	for from := 0; from < len(chunks); from += b.config.BatchSize {
		to := min(from+b.config.BatchSize, len(chunks))
		batch := chunks[from:to]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := b.config.Embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", from, to, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, v := range vectors {
			if dimension == 0 {
				dimension = len(v)
			}
			if len(v) == 0 || len(v) != dimension {
				return nil, fmt.Errorf("chunk %s has embedding dimension %d, want %d", batch[i].ID, len(v), dimension)
			}
			entries = append(entries, models.IndexEntry{Chunk: batch[i], Embedding: v})
		}

		if b.config.OnProgress != nil {
			b.config.OnProgress(to, len(chunks))
		}
	}

	snapshot := models.IndexSnapshot{
		Manifest: models.IndexManifest{
			BuildID:   uuid.NewString(),
			Model:     b.config.Embedder.ModelName(),
			Dimension: dimension,
			CreatedAt: time.Now().UTC(),
		},
		Entries: entries,
	}

	idx, err := b.config.Store.Save(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}

	b.config.Logger.Info("built index",
		"location", b.config.Store.Location(),
		"chunks", len(entries),
		"dimension", dimension,
		"model", snapshot.Manifest.Model,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return idx, nil
}
