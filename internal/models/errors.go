package models

import (
	"errors"
	"fmt"
)

// EmptyCorpusError is returned when normalization leaves no usable text units.
type EmptyCorpusError struct {
	Records int
	Skipped int
}

func (e *EmptyCorpusError) Error() string {
	return fmt.Sprintf("empty corpus: %d records read, %d skipped, no text units produced", e.Records, e.Skipped)
}

// InvalidChunkConfigError is returned for chunk parameters that cannot make
// progress.
type InvalidChunkConfigError struct {
	ChunkSize    int
	ChunkOverlap int
}

func (e *InvalidChunkConfigError) Error() string {
	return fmt.Sprintf("invalid chunk config: size=%d overlap=%d (need size >= 1 and 0 <= overlap < size)",
		e.ChunkSize, e.ChunkOverlap)
}

// Reasons an index could not be loaded.
const (
	IndexMissing        = "missing"
	IndexCorrupt        = "corrupt"
	IndexSchemaMismatch = "schema"
	IndexBuildFailed    = "build"
)

// IndexLoadError is returned when a persisted index is absent, unreadable,
// from another schema, or could not be built.
type IndexLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *IndexLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index %s at %s: %v", e.Reason, e.Path, e.Err)
	}
	return fmt.Sprintf("index %s at %s", e.Reason, e.Path)
}

func (e *IndexLoadError) Unwrap() error { return e.Err }

// IsIndexMissing reports whether err is an IndexLoadError for an index that
// does not exist yet.
func IsIndexMissing(err error) bool {
	var loadErr *IndexLoadError
	return errors.As(err, &loadErr) && loadErr.Reason == IndexMissing
}

// EmbeddingUnavailableError is returned when an embedding backend cannot be
// reached or initialized.
type EmbeddingUnavailableError struct {
	Backend string
	Err     error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding backend %q unavailable: %v", e.Backend, e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() error { return e.Err }
