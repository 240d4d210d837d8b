package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/saymasiddiquie/dscpl/internal/models"
)

// VersionFile returns the dataset file name for a version, e.g. "t_kjv.csv".
func VersionFile(version string) string {
	return fmt.Sprintf("t_%s.csv", strings.ToLower(version))
}

// ReadDataset reads every listed version from dir. Missing version files are
// logged and skipped; the caller decides whether an empty result is fatal.
func ReadDataset(dir string, versions []string, logger *slog.Logger) ([]models.RawRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var records []models.RawRecord
	for _, version := range versions {
		path := filepath.Join(dir, VersionFile(version))
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("version file not found", "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		recs, err := ReadVersion(f, version, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		logger.Info("read version", "version", version, "path", path, "records", len(recs))
		records = append(records, recs...)
	}
	return records, nil
}

// ReadVersion parses one version table. The header must name the book,
// chapter, verse and text columns as b, c, v and t; other columns such as id
// are ignored. Rows with missing fields are returned as they are so the
// normalizer can report them.
func ReadVersion(r io.Reader, version, source string) ([]models.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", source, err)
	}

	cols := map[string]int{"b": -1, "c": -1, "v": -1, "t": -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	for name, idx := range cols {
		if idx < 0 {
			return nil, fmt.Errorf("%s: missing column %q", source, name)
		}
	}

	field := func(row []string, name string) string {
		if idx := cols[name]; idx < len(row) {
			return row[idx]
		}
		return ""
	}

	var records []models.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				records = append(records, models.RawRecord{Version: version, Source: source, Line: parseErr.Line})
				continue
			}
			return nil, fmt.Errorf("read %s: %w", source, err)
		}
		line, _ := reader.FieldPos(0)

		records = append(records, models.RawRecord{
			Version: version,
			Book:    field(row, "b"),
			Chapter: field(row, "c"),
			Verse:   field(row, "v"),
			Text:    cleanVerseText(field(row, "t")),
			Source:  source,
			Line:    line,
		})
	}
	return records, nil
}

// cleanVerseText strips markup some translations carry (<i>, <span>, HTML
// entities) and collapses whitespace.
func cleanVerseText(text string) string {
	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
