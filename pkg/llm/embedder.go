package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
)

// EmbedderConfig selects and configures an embedding backend.
type EmbedderConfig struct {
	Backend   string // hugot, ollama or hash
	Model     string
	BaseURL   string // Ollama server URL
	ModelDir  string // hugot model cache
	Dimension int    // hash embedder width
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewEmbedder builds the configured backend. Backends that cannot start fail
// with *models.EmbeddingUnavailableError.
func NewEmbedder(config EmbedderConfig) (types.Embedder, error) {
	switch config.Backend {
	case "ollama":
		emb, err := NewOllamaEmbedder(config)
		if err != nil {
			return nil, err
		}
		return emb, nil
	case "hugot", "":
		emb, err := NewHugotEmbedder(config)
		if err != nil {
			return nil, err
		}
		return emb, nil
	case "hash":
		return NewHashEmbedder(config.Dimension), nil
	}
	return nil, fmt.Errorf("unknown embedding backend %q", config.Backend)
}

func unavailable(backend string, err error) error {
	return &models.EmbeddingUnavailableError{Backend: backend, Err: err}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
