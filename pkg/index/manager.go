package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
)

// flights is shared by every Manager in the process so that two managers
// pointed at the same location never build it twice at once.
var flights singleflight.Group

// ChunkSource produces the chunks an index is built from.
type ChunkSource func(ctx context.Context) ([]models.Chunk, error)

type ManagerConfig struct {
	Store        types.IndexStore
	Builder      *Builder
	Chunks       ChunkSource
	AutoBuild    bool
	BuildTimeout time.Duration
	Logger       *slog.Logger
}

// Manager hands out the index for one location, loading it on first use and
// building it when it does not exist yet.
type Manager struct {
	config ManagerConfig

	mu      sync.Mutex
	current types.VectorIndex
}

type flightResult struct {
	index types.VectorIndex
	built bool
}

func NewManager(config ManagerConfig) *Manager {
	if config.BuildTimeout <= 0 {
		config.BuildTimeout = 30 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Manager{config: config}
}

// Index returns the cached index, or loads (and if needed builds) it. Callers
// arriving while a load or build is in flight wait for it, or return early
// with their context's error.
func (m *Manager) Index(ctx context.Context) (types.VectorIndex, error) {
	if idx := m.cached(); idx != nil {
		return idx, nil
	}
	res, _, err := m.join(ctx, false)
	if err != nil {
		return nil, err
	}
	return res.index, nil
}

// Rebuild builds the index from the chunk source even when one exists.
func (m *Manager) Rebuild(ctx context.Context) (types.VectorIndex, error) {
	res, shared, err := m.join(ctx, true)
	if err != nil {
		return nil, err
	}
	if shared && !res.built {
		// Joined a flight that only loaded the existing index.
		res, _, err = m.join(ctx, true)
		if err != nil {
			return nil, err
		}
	}
	return res.index, nil
}

// Close releases the cached index.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

func (m *Manager) cached() types.VectorIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) join(ctx context.Context, force bool) (flightResult, bool, error) {
	ch := flights.DoChan(m.config.Store.Location(), func() (any, error) {
		return m.run(context.WithoutCancel(ctx), force)
	})

	select {
	case <-ctx.Done():
		return flightResult{}, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return flightResult{}, r.Shared, r.Err
		}
		res := r.Val.(flightResult)
		m.mu.Lock()
		m.current = res.index
		m.mu.Unlock()
		return res, r.Shared, nil
	}
}

// run is the body of one flight. It is detached from the caller that started
// it and bounded by the build timeout.
func (m *Manager) run(ctx context.Context, force bool) (flightResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.BuildTimeout)
	defer cancel()

	if !force {
		idx, err := m.config.Store.Load(ctx)
		if err == nil {
			m.checkModel(idx)
			m.store(idx)
			return flightResult{index: idx}, nil
		}
		if !m.config.AutoBuild || !replaceable(err) {
			return flightResult{}, err
		}
		m.config.Logger.Info("building index", "location", m.config.Store.Location(), "reason", err)
	}

	idx, err := m.build(ctx)
	if err != nil {
		return flightResult{}, &models.IndexLoadError{
			Path:   m.config.Store.Location(),
			Reason: models.IndexBuildFailed,
			Err:    err,
		}
	}
	m.store(idx)
	return flightResult{index: idx, built: true}, nil
}

// replaceable reports whether a load failure is fixed by building anew: the
// index does not exist, or was written under another schema. Corrupt indexes
// are left for an explicit rebuild.
func replaceable(err error) bool {
	var loadErr *models.IndexLoadError
	if !errors.As(err, &loadErr) {
		return false
	}
	return loadErr.Reason == models.IndexMissing || loadErr.Reason == models.IndexSchemaMismatch
}

func (m *Manager) build(ctx context.Context) (types.VectorIndex, error) {
	if m.config.Builder == nil || m.config.Chunks == nil {
		return nil, errors.New("no builder configured")
	}
	chunks, err := m.config.Chunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return m.config.Builder.Build(ctx, chunks)
}

// store caches idx even when every caller of the flight has given up waiting.
func (m *Manager) store(idx types.VectorIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = idx
}

func (m *Manager) checkModel(idx types.VectorIndex) {
	withManifest, ok := idx.(interface{ Manifest() models.IndexManifest })
	if !ok || m.config.Builder == nil {
		return
	}
	want := m.config.Builder.config.Embedder.ModelName()
	if got := withManifest.Manifest().Model; got != want {
		m.config.Logger.Warn("index was built with a different embedding model",
			"location", m.config.Store.Location(),
			"index_model", got,
			"embedder_model", want)
	}
}
