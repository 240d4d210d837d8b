package corpus_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saymasiddiquie/dscpl/internal/models"
	"github.com/saymasiddiquie/dscpl/pkg/corpus"
)

func quietNormalizer(g corpus.Granularity) *corpus.Normalizer {
	return corpus.NewNormalizer(corpus.NormalizerConfig{
		Granularity: g,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func rec(version, book, chapter, verse, text string) models.RawRecord {
	return models.RawRecord{Version: version, Book: book, Chapter: chapter, Verse: verse, Text: text}
}

func TestNormalize_ChapterUnits(t *testing.T) {
	records := []models.RawRecord{
		rec("kjv", "1", "1", "2", "And the earth was without form, and void."),
		rec("kjv", "1", "1", "1", "In the beginning God created the heaven and the earth."),
		rec("kjv", "1", "2", "1", "Thus the heavens and the earth were finished."),
		rec("web", "1", "1", "1", "In the beginning, God created the heavens and the earth."),
	}

	result, err := quietNormalizer(corpus.ByChapter).Normalize(records)
	require.NoError(t, err)
	require.Len(t, result.Units, 3)
	assert.Empty(t, result.Skipped)

	first := result.Units[0]
	assert.Equal(t, "kjv/1/1", first.ID)
	assert.Equal(t,
		"In the beginning God created the heaven and the earth. (1)\nAnd the earth was without form, and void. (2)",
		first.Text)
	assert.Equal(t, 1, first.VerseStart)
	assert.Equal(t, 2, first.VerseEnd)
	assert.Equal(t, "kjv 1 1:1-2", first.Reference())

	assert.Equal(t, "kjv/1/2", result.Units[1].ID)
	assert.Equal(t, "web/1/1", result.Units[2].ID)
}

func TestNormalize_OrdersBooksNumerically(t *testing.T) {
	records := []models.RawRecord{
		rec("kjv", "10", "1", "1", "Second Samuel."),
		rec("kjv", "2", "1", "1", "Exodus."),
		rec("kjv", "2", "10", "1", "Exodus ten."),
		rec("kjv", "2", "9", "1", "Exodus nine."),
	}

	result, err := quietNormalizer(corpus.ByChapter).Normalize(records)
	require.NoError(t, err)

	var ids []string
	for _, u := range result.Units {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"kjv/2/1", "kjv/2/9", "kjv/2/10", "kjv/10/1"}, ids)
}

func TestNormalize_SkipsMalformedAndDuplicates(t *testing.T) {
	records := []models.RawRecord{
		rec("kjv", "1", "1", "1", "First text."),
		rec("kjv", "1", "1", "1", "Second copy of verse one."),
		rec("kjv", "1", "x", "2", "Bad chapter."),
		rec("kjv", "1", "1", "two", "Bad verse."),
		rec("kjv", "1", "1", "3", "   "),
		rec("", "1", "1", "4", "No version."),
		rec("kjv", "1", "1", "0", "Verse zero."),
	}

	result, err := quietNormalizer(corpus.ByChapter).Normalize(records)
	require.NoError(t, err)
	require.Len(t, result.Units, 1)
	assert.Equal(t, "First text. (1)", result.Units[0].Text)

	require.Len(t, result.Skipped, 6)
	reasons := make([]string, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []string{
		"duplicate verse 1",
		`invalid chapter "x"`,
		`invalid verse "two"`,
		"missing text",
		"missing version or book",
		`invalid verse "0"`,
	}, reasons)
}

func TestNormalize_EmptyCorpus(t *testing.T) {
	records := []models.RawRecord{
		rec("kjv", "1", "a", "1", "text"),
		rec("kjv", "1", "1", "1", ""),
	}

	_, err := quietNormalizer(corpus.ByChapter).Normalize(records)
	require.Error(t, err)

	var emptyErr *models.EmptyCorpusError
	require.True(t, errors.As(err, &emptyErr))
	assert.Equal(t, 2, emptyErr.Records)
	assert.Equal(t, 2, emptyErr.Skipped)

	_, err = quietNormalizer(corpus.ByChapter).Normalize(nil)
	assert.True(t, errors.As(err, &emptyErr))
}

func TestNormalize_VerseGranularity(t *testing.T) {
	records := []models.RawRecord{
		rec("kjv", "43", "11", "35", "Jesus wept."),
		rec("kjv", "43", "11", "36", "Then said the Jews, Behold how he loved him!"),
	}

	result, err := quietNormalizer(corpus.ByVerse).Normalize(records)
	require.NoError(t, err)
	require.Len(t, result.Units, 2)

	assert.Equal(t, "kjv/43/11/35", result.Units[0].ID)
	assert.Equal(t, "Jesus wept. (35)", result.Units[0].Text)
	assert.Equal(t, "kjv 43 11:35", result.Units[0].Reference())
	assert.Equal(t, "kjv/43/11/36", result.Units[1].ID)
}

// Every well-formed verse number must appear exactly once in its chapter's
// unit, and nothing else may appear.
func TestNormalize_PreservesVerseSets(t *testing.T) {
	var records []models.RawRecord
	want := make(map[string][]int)
	for _, version := range []string{"kjv", "ylt"} {
		for chapter := 1; chapter <= 4; chapter++ {
			key := fmt.Sprintf("%s/5/%d", version, chapter)
			for v := 7 + chapter; v >= 1; v-- {
				records = append(records, rec(version, "5", strconv.Itoa(chapter), strconv.Itoa(v),
					fmt.Sprintf("Verse text %d of chapter %d.", v, chapter)))
				want[key] = append([]int{v}, want[key]...)
			}
		}
	}
	records = append(records, rec("kjv", "5", "1", "bad", "malformed"))

	result, err := quietNormalizer(corpus.ByChapter).Normalize(records)
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)

	verseSuffix := regexp.MustCompile(`\((\d+)\)$`)
	got := make(map[string][]int)
	for _, u := range result.Units {
		for _, line := range regexp.MustCompile("\n").Split(u.Text, -1) {
			m := verseSuffix.FindStringSubmatch(line)
			require.NotNil(t, m, "line %q has no verse suffix", line)
			n, _ := strconv.Atoi(m[1])
			got[u.ID] = append(got[u.ID], n)
		}
	}
	assert.Equal(t, want, got)
}

func TestParseGranularity(t *testing.T) {
	g, err := corpus.ParseGranularity("Verse")
	require.NoError(t, err)
	assert.Equal(t, corpus.ByVerse, g)

	g, err = corpus.ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, corpus.ByChapter, g)

	_, err = corpus.ParseGranularity("book")
	assert.Error(t, err)
}
