package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Corpus struct {
		DatasetDir    string   `yaml:"dataset_dir"`
		Versions      []string `yaml:"versions"`
		ProcessedPath string   `yaml:"processed_path"`
		Granularity   string   `yaml:"granularity"`
	} `yaml:"corpus"`

	Processor struct {
		ChunkSize    int  `yaml:"chunk_size"`
		ChunkOverlap *int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Embedding struct {
		Backend   string        `yaml:"backend"`
		BaseURL   string        `yaml:"base_url"`
		Model     string        `yaml:"model"`
		ModelDir  string        `yaml:"model_dir"`
		Dimension int           `yaml:"dimension"`
		BatchSize int           `yaml:"batch_size"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"embedding"`

	Index struct {
		Backend      string        `yaml:"backend"`
		Path         string        `yaml:"path"`
		DatabaseURL  string        `yaml:"database_url"`
		TableName    string        `yaml:"table_name"`
		BuildTimeout time.Duration `yaml:"build_timeout"`
		AutoBuild    *bool         `yaml:"auto_build"`
	} `yaml:"index"`

	Retrieval struct {
		K             int     `yaml:"k"`
		MinSimilarity float64 `yaml:"min_similarity"`
	} `yaml:"retrieval"`

	Verse struct {
		BaseURL   string        `yaml:"base_url"`
		RateLimit float64       `yaml:"rate_limit"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"verse"`

	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// ChunkOverlap returns the configured overlap. An explicit zero is kept.
func (c *Config) ChunkOverlap() int {
	if c.Processor.ChunkOverlap == nil {
		return 0
	}
	return *c.Processor.ChunkOverlap
}

// AutoBuildEnabled reports whether a missing index is built on first use.
func (c *Config) AutoBuildEnabled() bool {
	return c.Index.AutoBuild == nil || *c.Index.AutoBuild
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/dscpl/config.yaml"),
			"/etc/dscpl/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Corpus.DatasetDir == "" {
		config.Corpus.DatasetDir = "bible_dataset"
	}
	if len(config.Corpus.Versions) == 0 {
		config.Corpus.Versions = []string{"kjv", "web", "ylt"}
	}
	if config.Corpus.ProcessedPath == "" {
		config.Corpus.ProcessedPath = "processed_bible_data.json"
	}
	if config.Corpus.Granularity == "" {
		config.Corpus.Granularity = "chapter"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == nil {
		overlap := 50
		config.Processor.ChunkOverlap = &overlap
	}

	if config.Embedding.Backend == "" {
		config.Embedding.Backend = "hugot"
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Backend {
		case "ollama":
			config.Embedding.Model = "nomic-embed-text:latest"
		case "hash":
			config.Embedding.Model = "hash"
		default:
			config.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.ModelDir == "" {
		config.Embedding.ModelDir = "models"
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = 384
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 64
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 2 * time.Minute
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "file"
	}
	if config.Index.Path == "" {
		config.Index.Path = "vectorstore/bible_vectorstore"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "scripture_chunks"
	}
	if config.Index.BuildTimeout == 0 {
		config.Index.BuildTimeout = 30 * time.Minute
	}

	if config.Retrieval.K == 0 {
		config.Retrieval.K = 3
	}

	if config.Verse.BaseURL == "" {
		config.Verse.BaseURL = "https://bible-api.com/"
	}
	if config.Verse.RateLimit == 0 {
		config.Verse.RateLimit = 2.0
	}
	if config.Verse.Timeout == 0 {
		config.Verse.Timeout = 10 * time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	// A missing .env file is the common case.
	_ = godotenv.Load()

	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if path := os.Getenv("DSCPL_INDEX_PATH"); path != "" {
		config.Index.Path = path
	}
	if backend := os.Getenv("DSCPL_EMBEDDING_BACKEND"); backend != "" {
		config.Embedding.Backend = strings.ToLower(backend)
	}
	if level := os.Getenv("DSCPL_LOG_LEVEL"); level != "" {
		config.Log.Level = strings.ToLower(level)
	}
}
