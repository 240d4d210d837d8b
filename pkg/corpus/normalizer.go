// Package corpus turns per-version scripture tables into retrievable text
// units.
package corpus

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/saymasiddiquie/dscpl/internal/models"
)

// Granularity selects how verses are grouped into text units.
type Granularity string

const (
	ByChapter Granularity = "chapter"
	ByVerse   Granularity = "verse"
)

// ParseGranularity maps a config value to a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case ByChapter, "":
		return ByChapter, nil
	case ByVerse:
		return ByVerse, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// SkippedRecord is a record left out of normalization and the reason why.
type SkippedRecord struct {
	Record models.RawRecord
	Reason string
}

// NormalizeResult holds the units produced by a normalization run and the
// records it skipped.
type NormalizeResult struct {
	Units   []models.TextUnit
	Skipped []SkippedRecord
}

type NormalizerConfig struct {
	Granularity Granularity
	Logger      *slog.Logger
}

type Normalizer struct {
	config NormalizerConfig
}

func NewNormalizer(config NormalizerConfig) *Normalizer {
	if config.Granularity == "" {
		config.Granularity = ByChapter
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Normalizer{config: config}
}

type verse struct {
	number int
	text   string
}

type groupKey struct {
	version string
	book    string
	chapter int
}

// Normalize groups records by (version, book, chapter), orders each group by
// verse number and renders one line per verse as "{text} ({verse})".
// Malformed records and repeated verse numbers are skipped and logged. It
// fails with *models.EmptyCorpusError when no unit survives.
func (n *Normalizer) Normalize(records []models.RawRecord) (*NormalizeResult, error) {
	result := &NormalizeResult{}
	groups := make(map[groupKey][]verse)
	seen := make(map[groupKey]map[int]struct{})

	skip := func(r models.RawRecord, reason string) {
		n.config.Logger.Warn("skipping record", "record", r.String(), "reason", reason)
		result.Skipped = append(result.Skipped, SkippedRecord{Record: r, Reason: reason})
	}

	for _, r := range records {
		version := strings.TrimSpace(r.Version)
		book := strings.TrimSpace(r.Book)
		if version == "" || book == "" {
			skip(r, "missing version or book")
			continue
		}
		chapter, err := strconv.Atoi(strings.TrimSpace(r.Chapter))
		if err != nil || chapter < 1 {
			skip(r, fmt.Sprintf("invalid chapter %q", r.Chapter))
			continue
		}
		number, err := strconv.Atoi(strings.TrimSpace(r.Verse))
		if err != nil || number < 1 {
			skip(r, fmt.Sprintf("invalid verse %q", r.Verse))
			continue
		}
		text := strings.TrimSpace(r.Text)
		if text == "" {
			skip(r, "missing text")
			continue
		}

		key := groupKey{version: version, book: book, chapter: chapter}
		if seen[key] == nil {
			seen[key] = make(map[int]struct{})
		}
		if _, dup := seen[key][number]; dup {
			skip(r, fmt.Sprintf("duplicate verse %d", number))
			continue
		}
		seen[key][number] = struct{}{}
		groups[key] = append(groups[key], verse{number: number, text: text})
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	for _, k := range keys {
		verses := groups[k]
		sort.SliceStable(verses, func(i, j int) bool { return verses[i].number < verses[j].number })

		if n.config.Granularity == ByVerse {
			for _, v := range verses {
				result.Units = appendUnit(result.Units, k, []verse{v}, true)
			}
			continue
		}
		result.Units = appendUnit(result.Units, k, verses, false)
	}

	if len(result.Units) == 0 {
		return nil, &models.EmptyCorpusError{Records: len(records), Skipped: len(result.Skipped)}
	}

	n.config.Logger.Info("normalized corpus",
		"records", len(records),
		"units", len(result.Units),
		"skipped", len(result.Skipped),
		"granularity", string(n.config.Granularity))

	return result, nil
}

func appendUnit(units []models.TextUnit, k groupKey, verses []verse, perVerse bool) []models.TextUnit {
	lines := make([]string, 0, len(verses))
	for _, v := range verses {
		lines = append(lines, fmt.Sprintf("%s (%d)", v.text, v.number))
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return units
	}

	id := fmt.Sprintf("%s/%s/%d", k.version, k.book, k.chapter)
	if perVerse {
		id = fmt.Sprintf("%s/%d", id, verses[0].number)
	}

	return append(units, models.TextUnit{
		ID:         id,
		Text:       text,
		Version:    k.version,
		Book:       k.book,
		Chapter:    k.chapter,
		VerseStart: verses[0].number,
		VerseEnd:   verses[len(verses)-1].number,
	})
}

// lessKey orders by version, then book (numerically when both are numbers),
// then chapter.
func lessKey(a, b groupKey) bool {
	if a.version != b.version {
		return a.version < b.version
	}
	if a.book != b.book {
		ai, aerr := strconv.Atoi(a.book)
		bi, berr := strconv.Atoi(b.book)
		if aerr == nil && berr == nil {
			return ai < bi
		}
		return a.book < b.book
	}
	return a.chapter < b.chapter
}
