package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
	cfgPkg "github.com/saymasiddiquie/dscpl/pkg/config"
	"github.com/saymasiddiquie/dscpl/pkg/corpus"
	"github.com/saymasiddiquie/dscpl/pkg/index"
	"github.com/saymasiddiquie/dscpl/pkg/llm"
	"github.com/saymasiddiquie/dscpl/pkg/processor"
	"github.com/saymasiddiquie/dscpl/pkg/respond"
	"github.com/saymasiddiquie/dscpl/pkg/retrieval"
	"github.com/saymasiddiquie/dscpl/pkg/store"
	"github.com/saymasiddiquie/dscpl/pkg/verse"
)

// app holds the wired query pipeline.
type app struct {
	config   *cfgPkg.Config
	logger   *slog.Logger
	embedder types.Embedder
	store    types.IndexStore
	manager  *index.Manager
	selector *respond.Selector
	verses   *verse.Client

	closers []func()
}

type appOptions struct {
	onProgress func(done, total int)
	// requireIndex makes an unavailable embedder fatal. Without it the app
	// answers from the topic table only.
	requireIndex bool
}

// unavailableSearcher reports every search as unavailable.
type unavailableSearcher struct {
	reason error
}

func (s unavailableSearcher) Search(ctx context.Context, query string, k int) models.RetrievalResult {
	return models.Unavailable(s.reason)
}

func newApp(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{config: config, logger: logger}

	verses, err := newVerseClient(config, logger)
	if err != nil {
		return nil, err
	}
	a.verses = verses

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		Backend:   config.Embedding.Backend,
		Model:     config.Embedding.Model,
		BaseURL:   config.Embedding.BaseURL,
		ModelDir:  config.Embedding.ModelDir,
		Dimension: config.Embedding.Dimension,
		Timeout:   config.Embedding.Timeout,
		Logger:    logger,
	})
	var unavailableErr *models.EmbeddingUnavailableError
	if errors.As(err, &unavailableErr) && !opts.requireIndex {
		logger.Warn("embedding backend unavailable, answering from the topic table only", "error", err)
		a.selector = respond.NewSelector(respond.SelectorConfig{
			Searcher: unavailableSearcher{reason: err},
			K:        config.Retrieval.K,
			Logger:   logger,
		})
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.embedder = embedder
	if c, ok := embedder.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close embedder", "error", err)
			}
		})
	}

	switch config.Index.Backend {
	case "pgvector":
		pg, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: config.Index.DatabaseURL,
			TableName:  config.Index.TableName,
			Logger:     logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
	default:
		a.store = store.NewFileStore(config.Index.Path, logger)
	}

	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.Processor.ChunkSize,
		ChunkOverlap: config.ChunkOverlap(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	granularity, err := corpus.ParseGranularity(config.Corpus.Granularity)
	if err != nil {
		a.Close()
		return nil, err
	}
	source := corpus.Source{
		DatasetDir:    config.Corpus.DatasetDir,
		Versions:      config.Corpus.Versions,
		ProcessedPath: config.Corpus.ProcessedPath,
		Granularity:   granularity,
		Logger:        logger,
	}

	a.manager = index.NewManager(index.ManagerConfig{
		Store: a.store,
		Builder: index.NewBuilder(index.BuilderConfig{
			Embedder:   embedder,
			Store:      a.store,
			BatchSize:  config.Embedding.BatchSize,
			OnProgress: opts.onProgress,
			Logger:     logger,
		}),
		Chunks: func(ctx context.Context) ([]models.Chunk, error) {
			units, err := corpus.LoadUnits(source)
			if err != nil {
				return nil, err
			}
			return chunker.Process(units), nil
		},
		AutoBuild:    config.AutoBuildEnabled(),
		BuildTimeout: config.Index.BuildTimeout,
		Logger:       logger,
	})
	a.closers = append(a.closers, a.manager.Close)

	a.selector = respond.NewSelector(respond.SelectorConfig{
		Searcher: retrieval.New(retrieval.RetrieverConfig{
			Indexes:       a.manager,
			Embedder:      embedder,
			MinSimilarity: config.Retrieval.MinSimilarity,
			Logger:        logger,
		}),
		K:      config.Retrieval.K,
		Logger: logger,
	})
	return a, nil
}

func newVerseClient(config *cfgPkg.Config, logger *slog.Logger) (*verse.Client, error) {
	return verse.NewWithConfig(verse.ClientConfig{
		BaseURL:   config.Verse.BaseURL,
		RateLimit: config.Verse.RateLimit,
		Timeout:   config.Verse.Timeout,
		Logger:    logger,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
