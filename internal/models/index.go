package models

import "time"

// IndexSchema tags every persisted index. Loading an index with a different
// tag fails instead of returning results from an incompatible layout.
const IndexSchema = "dscpl-index/v1"

// IndexManifest describes a persisted index.
type IndexManifest struct {
	Schema    string    `json:"schema"`
	BuildID   string    `json:"build_id"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IndexSnapshot is a complete index: every entry plus its manifest. A rebuild
// replaces a snapshot as a whole.
type IndexSnapshot struct {
	Manifest IndexManifest
	Entries  []IndexEntry
}

// Hit is one search result.
type Hit struct {
	ChunkID    string
	Text       string
	Similarity float64
	Unit       UnitMeta
}

// RetrievalStatus tells whether a search ran against an index.
type RetrievalStatus int

const (
	RetrievalOK RetrievalStatus = iota
	RetrievalUnavailable
)

func (s RetrievalStatus) String() string {
	if s == RetrievalOK {
		return "ok"
	}
	return "unavailable"
}

// RetrievalResult is the outcome of a query. Hits are ordered by descending
// similarity. When Status is RetrievalUnavailable, Hits is empty and Reason
// says why.
type RetrievalResult struct {
	Status RetrievalStatus
	Hits   []Hit
	Reason error
}

// Ok builds an available result.
func Ok(hits []Hit) RetrievalResult {
	return RetrievalResult{Status: RetrievalOK, Hits: hits}
}

// Unavailable builds a result for a search that could not run.
func Unavailable(reason error) RetrievalResult {
	return RetrievalResult{Status: RetrievalUnavailable, Reason: reason}
}

// Available reports whether the search ran.
func (r RetrievalResult) Available() bool {
	return r.Status == RetrievalOK
}
