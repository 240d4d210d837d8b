package index_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
	"github.com/saymasiddiquie/dscpl/pkg/index"
	"github.com/saymasiddiquie/dscpl/pkg/llm"
	"github.com/saymasiddiquie/dscpl/pkg/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder wraps the hash embedder, counts document batches and can be
// made to block until released or until its context ends.
type fakeEmbedder struct {
	*llm.HashEmbedder
	calls atomic.Int32
	gate  chan struct{}
	vecs  func(n int) [][]float32
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.vecs != nil {
		return f.vecs(len(texts)), nil
	}
	return f.HashEmbedder.EmbedDocuments(ctx, texts)
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{HashEmbedder: llm.NewHashEmbedder(128)}
}

var _ types.Embedder = (*fakeEmbedder)(nil)

func testChunks() []models.Chunk {
	texts := []string{
		"In the beginning God created the heaven and the earth. (1)",
		"Jesus wept. (35)",
		"The LORD is my shepherd; I shall not want. (1)",
		"For God so loved the world, that he gave his only begotten Son. (16)",
		"Blessed are the peacemakers: for they shall be called the children of God. (9)",
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{ID: fmt.Sprintf("u%d#0", i), UnitID: fmt.Sprintf("u%d", i), Text: text}
	}
	return chunks
}

func newBuilder(emb types.Embedder, s types.IndexStore) *index.Builder {
	return index.NewBuilder(index.BuilderConfig{Embedder: emb, Store: s, BatchSize: 2, Logger: quietLogger()})
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()
	var progress [][2]int
	b := index.NewBuilder(index.BuilderConfig{
		Embedder:  emb,
		Store:     store.NewFileStore(t.TempDir(), quietLogger()),
		BatchSize: 2,
		OnProgress: func(done, total int) {
			progress = append(progress, [2]int{done, total})
		},
		Logger: quietLogger(),
	})

	idx, err := b.Build(ctx, testChunks())
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Len())
	assert.Equal(t, int32(3), emb.calls.Load(), "5 chunks in batches of 2")
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)

	manifest := idx.(*store.MemoryIndex).Manifest()
	assert.Equal(t, "hash-128", manifest.Model)
	assert.Equal(t, 128, manifest.Dimension)
	assert.NotEmpty(t, manifest.BuildID)
}

func TestBuilder_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("empty chunk set", func(t *testing.T) {
		b := newBuilder(newFakeEmbedder(), store.NewFileStore(t.TempDir(), quietLogger()))
		_, err := b.Build(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("wrong vector count", func(t *testing.T) {
		emb := newFakeEmbedder()
		emb.vecs = func(n int) [][]float32 { return make([][]float32, n-1) }
		b := newBuilder(emb, store.NewFileStore(t.TempDir(), quietLogger()))
		_, err := b.Build(ctx, testChunks())
		assert.ErrorContains(t, err, "vectors for")
	})

	t.Run("inconsistent dimensions", func(t *testing.T) {
		emb := newFakeEmbedder()
		width := 3
		emb.vecs = func(n int) [][]float32 {
			out := make([][]float32, n)
			for i := range out {
				out[i] = make([]float32, width)
				out[i][0] = 1
				width++
			}
			return out
		}
		b := newBuilder(emb, store.NewFileStore(t.TempDir(), quietLogger()))
		_, err := b.Build(ctx, testChunks())
		assert.ErrorContains(t, err, "dimension")
	})
}

func TestBuilder_Idempotent(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()

	first, err := newBuilder(emb, store.NewFileStore(t.TempDir(), quietLogger())).Build(ctx, testChunks())
	require.NoError(t, err)
	second, err := newBuilder(emb, store.NewFileStore(t.TempDir(), quietLogger())).Build(ctx, testChunks())
	require.NoError(t, err)

	for _, q := range []string{"beginning", "shepherd", "love the world"} {
		vec, err := emb.EmbedQuery(ctx, q)
		require.NoError(t, err)

		a, err := first.Search(ctx, vec, 5)
		require.NoError(t, err)
		b, err := second.Search(ctx, vec, 5)
		require.NoError(t, err)
		assert.Equal(t, a, b, "query %q", q)
	}
}

type managerFixture struct {
	manager    *index.Manager
	embedder   *fakeEmbedder
	store      *store.FileStore
	dir        string
	chunkCalls atomic.Int32
	chunkErr   error
}

func newManager(t *testing.T, autoBuild bool, timeout time.Duration) *managerFixture {
	t.Helper()
	f := &managerFixture{
		embedder: newFakeEmbedder(),
		dir:      t.TempDir(),
	}
	f.store = store.NewFileStore(f.dir, quietLogger())
	f.manager = index.NewManager(index.ManagerConfig{
		Store:   f.store,
		Builder: newBuilder(f.embedder, f.store),
		Chunks: func(ctx context.Context) ([]models.Chunk, error) {
			f.chunkCalls.Add(1)
			if f.chunkErr != nil {
				return nil, f.chunkErr
			}
			return testChunks(), nil
		},
		AutoBuild:    autoBuild,
		BuildTimeout: timeout,
		Logger:       quietLogger(),
	})
	t.Cleanup(f.manager.Close)
	return f
}

func TestManager_BuildsOnceForConcurrentCallers(t *testing.T) {
	f := newManager(t, true, time.Minute)
	f.embedder.gate = make(chan struct{})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]types.VectorIndex, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.manager.Index(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.embedder.calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	close(f.embedder.gate)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), f.chunkCalls.Load(), "exactly one build")

	idx, err := f.manager.Index(context.Background())
	require.NoError(t, err)
	assert.Same(t, results[0], idx, "index is cached")
}

func TestManager_LoadsExistingIndex(t *testing.T) {
	f := newManager(t, true, time.Minute)
	_, err := newBuilder(f.embedder, f.store).Build(context.Background(), testChunks())
	require.NoError(t, err)

	idx, err := f.manager.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Len())
	assert.Zero(t, f.chunkCalls.Load(), "existing index must not be rebuilt")
}

func TestManager_AutoBuildDisabled(t *testing.T) {
	f := newManager(t, false, time.Minute)

	_, err := f.manager.Index(context.Background())
	assert.True(t, models.IsIndexMissing(err))
	assert.Zero(t, f.chunkCalls.Load())
}

func TestManager_FailedBuildIsNotCached(t *testing.T) {
	f := newManager(t, true, time.Minute)
	f.chunkErr = &models.EmptyCorpusError{}

	_, err := f.manager.Index(context.Background())
	var loadErr *models.IndexLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, models.IndexBuildFailed, loadErr.Reason)
	var emptyErr *models.EmptyCorpusError
	assert.True(t, errors.As(err, &emptyErr))

	f.chunkErr = nil
	idx, err := f.manager.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Len())
	assert.Equal(t, int32(2), f.chunkCalls.Load())
}

func TestManager_BuildTimeout(t *testing.T) {
	f := newManager(t, true, 50*time.Millisecond)
	f.embedder.gate = make(chan struct{})

	_, err := f.manager.Index(context.Background())
	var loadErr *models.IndexLoadError
	require.True(t, errors.As(err, &loadErr), "got %v", err)
	assert.Equal(t, models.IndexBuildFailed, loadErr.Reason)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_WaiterHonorsOwnContext(t *testing.T) {
	f := newManager(t, true, time.Minute)
	f.embedder.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.manager.Index(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached build keeps going and its result is cached.
	close(f.embedder.gate)
	require.Eventually(t, func() bool {
		idx, err := f.manager.Index(context.Background())
		return err == nil && idx.Len() == 5
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), f.chunkCalls.Load())
}

func TestManager_Rebuild(t *testing.T) {
	f := newManager(t, true, time.Minute)
	ctx := context.Background()

	first, err := f.manager.Index(ctx)
	require.NoError(t, err)

	second, err := f.manager.Rebuild(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), f.chunkCalls.Load())

	current, err := f.manager.Index(ctx)
	require.NoError(t, err)
	assert.Same(t, second, current)
}

func writeStaleIndex(t *testing.T, dir string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, store.IndexFileName))
	require.NoError(t, err)
	defer f.Close()

	w, err := xz.NewWriter(f)
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"schema":"dscpl-index/v0","dimension":3,"count":0}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestManager_RebuildsOtherSchema(t *testing.T) {
	f := newManager(t, true, time.Minute)
	writeStaleIndex(t, f.dir)

	idx, err := f.manager.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, idx.Len())
	assert.Equal(t, int32(1), f.chunkCalls.Load())

	reloaded, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.IndexSchema, reloaded.(*store.MemoryIndex).Manifest().Schema)
}

func TestManager_KeepsOtherSchemaWithoutAutoBuild(t *testing.T) {
	f := newManager(t, false, time.Minute)
	writeStaleIndex(t, f.dir)

	_, err := f.manager.Index(context.Background())
	var loadErr *models.IndexLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, models.IndexSchemaMismatch, loadErr.Reason)
	assert.Zero(t, f.chunkCalls.Load())
}

func TestManager_CorruptIndexIsNotRebuilt(t *testing.T) {
	f := newManager(t, true, time.Minute)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, store.IndexFileName), []byte("garbage"), 0644))

	_, err := f.manager.Index(context.Background())
	var loadErr *models.IndexLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, models.IndexCorrupt, loadErr.Reason)
	assert.Zero(t, f.chunkCalls.Load())
}
