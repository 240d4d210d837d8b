package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
)

// HugotEmbedder runs a sentence-transformers model in process with hugot's
// pure Go backend.
type HugotEmbedder struct {
	config  EmbedderConfig
	mu      sync.Mutex
	session *hugot.Session
	// run executes the feature extraction pipeline. It cannot be interrupted,
	// so cancellation is only observed around it.
	run func(texts []string) ([][]float32, error)
}

func NewHugotEmbedder(config EmbedderConfig) (*HugotEmbedder, error) {
	if config.Model == "" {
		config.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if config.ModelDir == "" {
		config.ModelDir = "models"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	modelPath, err := prepareModel(config)
	if err != nil {
		return nil, unavailable("hugot", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, unavailable("hugot", fmt.Errorf("failed to create hugot session: %w", err))
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "dscpl-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			err = errors.Join(err, destroyErr)
		}
		return nil, unavailable("hugot", fmt.Errorf("failed to create embedding pipeline: %w", err))
	}

	return &HugotEmbedder{
		config:  config,
		session: session,
		run: func(texts []string) ([][]float32, error) {
			result, err := pipeline.RunPipeline(texts)
			if err != nil {
				return nil, err
			}
			return result.Embeddings, nil
		},
	}, nil
}

// prepareModel downloads the model into ModelDir unless it is already there.
func prepareModel(config EmbedderConfig) (string, error) {
	modelPath := filepath.Join(config.ModelDir, strings.ReplaceAll(config.Model, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(config.ModelDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	config.Logger.Info("downloading embedding model", "model", config.Model, "dir", config.ModelDir)
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloadedPath, err := hugot.DownloadModel(config.Model, config.ModelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloadedPath, nil
}

func (e *HugotEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := withTimeout(ctx, e.config.Timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run == nil {
		return nil, unavailable("hugot", errors.New("embedder closed"))
	}

	embeddings, err := e.run(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	// A batch that finished after the deadline is discarded.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("hugot returned %d embeddings for %d texts", len(embeddings), len(texts))
	}
	return embeddings, nil
}

func (e *HugotEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (e *HugotEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases the hugot session.
func (e *HugotEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.run = nil
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
