package models

import "fmt"

// RawRecord is one verse row as read from a dataset file. Chapter and Verse
// hold the source field text; the normalizer parses and validates them.
type RawRecord struct {
	Version string
	Book    string
	Chapter string
	Verse   string
	Text    string

	Source string
	Line   int
}

func (r RawRecord) String() string {
	return fmt.Sprintf("%s:%d (%s %s:%s)", r.Source, r.Line, r.Book, r.Chapter, r.Verse)
}

// TextUnit is a normalized, retrievable body of scripture text.
type TextUnit struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Version    string `json:"version,omitempty"`
	Book       string `json:"book,omitempty"`
	Chapter    int    `json:"chapter,omitempty"`
	VerseStart int    `json:"verse_start,omitempty"`
	VerseEnd   int    `json:"verse_end,omitempty"`
}

// Reference renders the unit's citation, e.g. "kjv 1 1:1-31".
func (u TextUnit) Reference() string {
	if u.Book == "" {
		return u.ID
	}
	ref := fmt.Sprintf("%s %s %d", u.Version, u.Book, u.Chapter)
	switch {
	case u.VerseStart == 0:
	case u.VerseStart == u.VerseEnd:
		ref += fmt.Sprintf(":%d", u.VerseStart)
	default:
		ref += fmt.Sprintf(":%d-%d", u.VerseStart, u.VerseEnd)
	}
	return ref
}

// Chunk is a bounded slice of a TextUnit. Start and End are rune offsets into
// the unit text.
type Chunk struct {
	ID     string
	UnitID string
	Seq    int
	Text   string
	Start  int
	End    int
	Unit   UnitMeta
}

// UnitMeta is the metadata a Chunk carries back to its TextUnit.
type UnitMeta struct {
	Version    string
	Book       string
	Chapter    int
	VerseStart int
	VerseEnd   int
}

// Meta returns the unit's metadata without its text.
func (u TextUnit) Meta() UnitMeta {
	return UnitMeta{
		Version:    u.Version,
		Book:       u.Book,
		Chapter:    u.Chapter,
		VerseStart: u.VerseStart,
		VerseEnd:   u.VerseEnd,
	}
}

// IndexEntry is a Chunk with its embedding, as stored in an index.
type IndexEntry struct {
	Chunk     Chunk
	Embedding []float32
}
