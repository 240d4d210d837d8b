package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saymasiddiquie/dscpl/internal/models"
)

func newStubHugot(timeout time.Duration, run func(texts []string) ([][]float32, error)) *HugotEmbedder {
	return &HugotEmbedder{
		config: EmbedderConfig{Model: "sentence-transformers/all-MiniLM-L6-v2", Timeout: timeout},
		run:    run,
	}
}

func vectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out
}

func TestHugotEmbedder_EmbedDocuments(t *testing.T) {
	emb := newStubHugot(0, func(texts []string) ([][]float32, error) {
		return vectors(len(texts)), nil
	})

	got, err := emb.EmbedDocuments(context.Background(), []string{"faith", "hope"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	query, err := emb.EmbedQuery(context.Background(), "love")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, query)
}

func TestHugotEmbedder_DiscardsBatchFinishedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emb := newStubHugot(0, func(texts []string) ([][]float32, error) {
		cancel()
		return vectors(len(texts)), nil
	})

	_, err := emb.EmbedDocuments(ctx, []string{"faith"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHugotEmbedder_DiscardsBatchPastTimeout(t *testing.T) {
	emb := newStubHugot(10*time.Millisecond, func(texts []string) ([][]float32, error) {
		time.Sleep(50 * time.Millisecond)
		return vectors(len(texts)), nil
	})

	_, err := emb.EmbedDocuments(context.Background(), []string{"faith"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHugotEmbedder_Closed(t *testing.T) {
	emb := newStubHugot(0, func(texts []string) ([][]float32, error) {
		return vectors(len(texts)), nil
	})
	require.NoError(t, emb.Close())

	_, err := emb.EmbedDocuments(context.Background(), []string{"faith"})
	var unavailableErr *models.EmbeddingUnavailableError
	require.True(t, errors.As(err, &unavailableErr))
	assert.Equal(t, "hugot", unavailableErr.Backend)
}
