package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/internal/types"
)

// IndexFileName is the file inside the index directory holding the index.
const IndexFileName = "index.xz"

var _ types.IndexStore = (*FileStore)(nil)

// FileStore keeps an index in a directory as one xz-compressed file: a JSON
// manifest line followed by the gob-encoded entries. The manifest carries the
// schema tag and a blake3 checksum of the entries.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: filepath.Clean(dir), logger: logger}
}

func (s *FileStore) Location() string {
	return s.dir
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, IndexFileName)
}

// Save writes the snapshot to a temporary file in the index directory and
// renames it over the current index, so readers see either the old or the new
// index and never a partial one.
func (s *FileStore) Save(ctx context.Context, snapshot models.IndexSnapshot) (types.VectorIndex, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(snapshot.Entries); err != nil {
		return nil, fmt.Errorf("encode index entries: %w", err)
	}
	sum := blake3.Sum256(payload.Bytes())

	manifest := snapshot.Manifest
	manifest.Schema = models.IndexSchema
	manifest.Count = len(snapshot.Entries)
	manifest.Checksum = hex.EncodeToString(sum[:])

	header, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode index manifest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".index-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	xw, err := xz.NewWriter(tmp)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := xw.Write(append(header, '\n')); err != nil {
		cleanup()
		return nil, fmt.Errorf("write index manifest: %w", err)
	}
	if _, err := xw.Write(payload.Bytes()); err != nil {
		cleanup()
		return nil, fmt.Errorf("write index entries: %w", err)
	}
	if err := xw.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close xz writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename index into place: %w", err)
	}

	s.logger.Info("saved index",
		"path", s.path(),
		"entries", manifest.Count,
		"model", manifest.Model,
		"build_id", manifest.BuildID)

	return NewMemoryIndex(manifest, snapshot.Entries), nil
}

// Load reads and verifies the persisted index. Every failure is a
// *models.IndexLoadError.
func (s *FileStore) Load(ctx context.Context) (types.VectorIndex, error) {
	fail := func(reason string, err error) error {
		return &models.IndexLoadError{Path: s.path(), Reason: reason, Err: err}
	}

	f, err := os.Open(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fail(models.IndexMissing, nil)
	}
	if err != nil {
		return nil, fail(models.IndexCorrupt, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, fail(models.IndexCorrupt, err)
	}
	br := bufio.NewReader(xr)

	header, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fail(models.IndexCorrupt, fmt.Errorf("read manifest: %w", err))
	}
	var manifest models.IndexManifest
	if err := json.Unmarshal(header, &manifest); err != nil {
		return nil, fail(models.IndexCorrupt, fmt.Errorf("parse manifest: %w", err))
	}
	if manifest.Schema != models.IndexSchema {
		return nil, fail(models.IndexSchemaMismatch,
			fmt.Errorf("found schema %q, want %q", manifest.Schema, models.IndexSchema))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, fail(models.IndexCorrupt, fmt.Errorf("read entries: %w", err))
	}
	sum := blake3.Sum256(payload)
	if hex.EncodeToString(sum[:]) != manifest.Checksum {
		return nil, fail(models.IndexCorrupt, errors.New("checksum mismatch"))
	}

	var entries []models.IndexEntry
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&entries); err != nil {
		return nil, fail(models.IndexCorrupt, fmt.Errorf("decode entries: %w", err))
	}
	if len(entries) != manifest.Count {
		return nil, fail(models.IndexCorrupt,
			fmt.Errorf("manifest lists %d entries, found %d", manifest.Count, len(entries)))
	}
	for _, e := range entries {
		if len(e.Embedding) != manifest.Dimension {
			return nil, fail(models.IndexCorrupt,
				fmt.Errorf("entry %s has dimension %d, manifest says %d", e.Chunk.ID, len(e.Embedding), manifest.Dimension))
		}
	}

	s.logger.Debug("loaded index", "path", s.path(), "entries", len(entries), "model", manifest.Model)
	return NewMemoryIndex(manifest, entries), nil
}
