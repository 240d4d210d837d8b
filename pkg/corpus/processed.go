package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/saymasiddiquie/dscpl/internal/models"
)

// WriteProcessed writes units as a JSON array to path. The file is written to
// a temporary name first and renamed into place.
func WriteProcessed(path string, units []models.TextUnit) error {
	data, err := json.MarshalIndent(units, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal processed corpus: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".processed-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write processed corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close processed corpus: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename processed corpus: %w", err)
	}
	return nil
}

// ReadProcessed loads units written by WriteProcessed. Entries that only carry
// a "text" field are accepted and get positional ids.
func ReadProcessed(path string) ([]models.TextUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read processed corpus: %w", err)
	}

	var entries []models.TextUnit
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse processed corpus %s: %w", path, err)
	}

	units := make([]models.TextUnit, 0, len(entries))
	for i, u := range entries {
		u.Text = strings.TrimSpace(u.Text)
		if u.Text == "" {
			continue
		}
		if u.ID == "" {
			u.ID = fmt.Sprintf("unit/%d", i)
		}
		units = append(units, u)
	}

	if len(units) == 0 {
		return nil, &models.EmptyCorpusError{Records: len(entries), Skipped: len(entries)}
	}
	return units, nil
}

type Source struct {
	DatasetDir    string
	Versions      []string
	ProcessedPath string
	Granularity   Granularity
	Logger        *slog.Logger
}

// LoadUnits returns the corpus as text units. A processed corpus file is
// preferred; without one the dataset tables are read and normalized.
func LoadUnits(src Source) ([]models.TextUnit, error) {
	logger := src.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if src.ProcessedPath != "" {
		units, err := ReadProcessed(src.ProcessedPath)
		if err == nil {
			logger.Info("loaded processed corpus", "path", src.ProcessedPath, "units", len(units))
			if found, ok := granularityOf(units); ok && src.Granularity != "" && found != src.Granularity {
				logger.Warn("processed corpus granularity differs from configuration, rerun process to regenerate it",
					"path", src.ProcessedPath,
					"file_granularity", string(found),
					"configured", string(src.Granularity))
			}
			return units, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logger.Info("processed corpus not found, reading dataset", "path", src.ProcessedPath, "dir", src.DatasetDir)
	}

	records, err := ReadDataset(src.DatasetDir, src.Versions, logger)
	if err != nil {
		return nil, err
	}

	result, err := NewNormalizer(NormalizerConfig{
		Granularity: src.Granularity,
		Logger:      logger,
	}).Normalize(records)
	if err != nil {
		return nil, err
	}
	return result.Units, nil
}

// granularityOf infers how units were grouped from their verse ranges. Units
// without verse numbers give no answer.
func granularityOf(units []models.TextUnit) (Granularity, bool) {
	for _, u := range units {
		if u.VerseStart == 0 {
			return "", false
		}
		if u.VerseEnd > u.VerseStart {
			return ByChapter, true
		}
	}
	return ByVerse, len(units) > 0
}
