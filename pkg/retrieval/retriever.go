package retrieval

import (
	"context"
	"log/slog"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
)

// IndexProvider supplies the index to search, loading or building it on
// demand. *index.Manager implements it.
type IndexProvider interface {
	Index(ctx context.Context) (types.VectorIndex, error)
}

type RetrieverConfig struct {
	Indexes  IndexProvider
	Embedder types.Embedder
	// MinSimilarity drops hits scoring below it. Zero keeps every hit.
	MinSimilarity float64
	Logger        *slog.Logger
}

type Retriever struct {
	config RetrieverConfig
}

var _ types.Searcher = (*Retriever)(nil)

func New(config RetrieverConfig) *Retriever {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Retriever{config: config}
}

// Search returns up to k hits for query. It never fails: any problem reaching
// the index or the embedder yields an Unavailable result.
func (r *Retriever) Search(ctx context.Context, query string, k int) models.RetrievalResult {
	if k <= 0 {
		return models.Ok(nil)
	}

	idx, err := r.config.Indexes.Index(ctx)
	if err != nil {
		r.config.Logger.Warn("index unavailable", "error", err)
		return models.Unavailable(err)
	}

	vec, err := r.config.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.config.Logger.Warn("query embedding failed", "error", err)
		return models.Unavailable(err)
	}

	hits, err := idx.Search(ctx, vec, k)
	if err != nil {
		r.config.Logger.Warn("index search failed", "error", err)
		return models.Unavailable(err)
	}

	if r.config.MinSimilarity != 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Similarity >= r.config.MinSimilarity {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	r.config.Logger.Debug("retrieved", "query", query, "k", k, "hits", len(hits))
	return models.Ok(hits)
}
