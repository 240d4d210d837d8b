package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Corpus config
	if c.Corpus.Granularity != "chapter" && c.Corpus.Granularity != "verse" {
		errors = append(errors, ValidationError{
			Field:   "corpus.granularity",
			Message: fmt.Sprintf("granularity must be chapter or verse, got %q", c.Corpus.Granularity),
		})
	}

	for _, v := range c.Corpus.Versions {
		if strings.TrimSpace(v) == "" || strings.ContainsAny(v, `/\`) {
			errors = append(errors, ValidationError{
				Field:   "corpus.versions",
				Message: fmt.Sprintf("invalid version name: %q", v),
			})
		}
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if overlap := c.ChunkOverlap(); overlap < 0 || overlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Embedding config
	switch c.Embedding.Backend {
	case "hugot", "ollama", "hash":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.backend",
			Message: fmt.Sprintf("unknown embedding backend: %q", c.Embedding.Backend),
		})
	}

	if c.Embedding.Backend == "ollama" {
		if u, err := url.Parse(c.Embedding.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	}

	if c.Embedding.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimension",
			Message: "dimension must be positive",
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Index config
	switch c.Index.Backend {
	case "file":
		if c.Index.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "index.path",
				Message: "index path is required for the file backend",
			})
		}
	case "pgvector":
		if c.Index.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Index.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.database_url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown index backend: %q", c.Index.Backend),
		})
	}

	if c.Index.BuildTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "index.build_timeout",
			Message: "build_timeout must be positive",
		})
	}

	// Validate Retrieval config
	if c.Retrieval.K < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.k",
			Message: "k must be positive",
		})
	}

	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.min_similarity",
			Message: "min_similarity must be between -1 and 1",
		})
	}

	// Validate Verse config
	if u, err := url.Parse(c.Verse.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "verse.base_url",
			Message: "invalid verse API base URL",
		})
	}

	if c.Verse.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "verse.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level: %q", c.Log.Level),
		})
	}

	return errors
}
