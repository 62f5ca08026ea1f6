// Package file loads pipeline configuration from a TOML file.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// Config is the full pipeline configuration.
type Config struct {
	Scraper   ScraperConfig   `toml:"scraper"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Storage   StorageConfig   `toml:"storage"`
	Chunking  ChunkingConfig  `toml:"chunking"`
}

// ScraperConfig configures the scrape backend client.
type ScraperConfig struct {
	// BaseURL is the scrape backend endpoint.
	BaseURL string `toml:"base_url"`

	// APIToken authenticates against the backend, if required.
	APIToken string `toml:"api_token"`

	// PollIntervalSeconds is the delay between job status polls.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`

	// JobTimeoutSeconds bounds how long a single job may run.
	JobTimeoutSeconds int `toml:"job_timeout_seconds"`

	// MaxConcurrentJobs overrides the backend-advertised capacity.
	// Zero means use what the backend's health probe reports.
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
}

// ProviderConfig configures one embedding provider.
type ProviderConfig struct {
	// Name selects the provider ("openai" or "ollama").
	Name string `toml:"name"`

	// Model is the embedding model identifier.
	Model string `toml:"model"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`

	// APIKey authenticates the provider.
	APIKey string `toml:"api_key"`

	// Dimensions overrides the model's vector size.
	Dimensions int `toml:"dimensions"`
}

// EmbeddingConfig configures embedding generation.
type EmbeddingConfig struct {
	// Providers is the fallback chain, tried in order.
	Providers []ProviderConfig `toml:"providers"`

	// CacheSize is the number of embeddings held in the LRU cache.
	CacheSize int `toml:"cache_size"`

	// MaxAttempts is the per-provider retry budget per batch.
	MaxAttempts int `toml:"max_attempts"`

	// BatchSize is the number of texts sent per provider call.
	BatchSize int `toml:"batch_size"`

	// BackoffMillis is the base retry backoff in milliseconds.
	BackoffMillis int `toml:"backoff_millis"`
}

// StorageConfig configures the vector store.
type StorageConfig struct {
	// Driver selects the store ("sqlite", "postgres" or "memory").
	Driver string `toml:"driver"`

	// DSN is the postgres connection string.
	DSN string `toml:"dsn"`

	// DataDir is the sqlite data directory.
	DataDir string `toml:"data_dir"`

	// Dimensions is the embedding vector size the store accepts.
	Dimensions int `toml:"dimensions"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	// TargetTokens is the per-chunk token budget.
	TargetTokens int `toml:"target_tokens"`

	// OverlapTokens is the token overlap carried between chunks.
	OverlapTokens int `toml:"overlap_tokens"`

	// MinTokens is the floor below which units are absorbed into
	// the previous chunk.
	MinTokens int `toml:"min_tokens"`
}

// Default configuration values.
const (
	DefaultStorageDriver = "sqlite"
	DefaultDimensions    = 768
	DefaultCacheSize     = 8192
	DefaultMaxAttempts   = 3
	DefaultBatchSize     = 64
	DefaultBackoff       = 500 * time.Millisecond
	DefaultTargetTokens  = 400
	DefaultOverlapTokens = 40
	DefaultMinTokens     = 20
)

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Embedding: EmbeddingConfig{
			Providers: []ProviderConfig{
				{Name: "ollama"},
			},
			CacheSize:   DefaultCacheSize,
			MaxAttempts: DefaultMaxAttempts,
			BatchSize:   DefaultBatchSize,
		},
		Storage: StorageConfig{
			Driver:     DefaultStorageDriver,
			Dimensions: DefaultDimensions,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  DefaultTargetTokens,
			OverlapTokens: DefaultOverlapTokens,
			MinTokens:     DefaultMinTokens,
		},
	}
}

// DefaultPath returns the default config file path,
// ~/.docvector/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".docvector", "config.toml"), nil
}

// Load reads configuration from the TOML file at path. If path is empty
// the default location is used. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing config: %v", domain.ErrConfiguration, err)
	}

	return applyDefaults(cfg), nil
}

// applyDefaults fills in zero values left by a partial config file.
func applyDefaults(cfg Config) Config {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Dimensions == 0 {
		cfg.Storage.Dimensions = DefaultDimensions
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = DefaultCacheSize
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = DefaultBatchSize
	}
	if len(cfg.Embedding.Providers) == 0 {
		cfg.Embedding.Providers = []ProviderConfig{{Name: "ollama"}}
	}
	if cfg.Chunking.TargetTokens == 0 {
		cfg.Chunking.TargetTokens = DefaultTargetTokens
	}
	if cfg.Chunking.OverlapTokens == 0 {
		cfg.Chunking.OverlapTokens = DefaultOverlapTokens
	}
	if cfg.Chunking.MinTokens == 0 {
		cfg.Chunking.MinTokens = DefaultMinTokens
	}
	return cfg
}

// Backoff returns the configured retry backoff as a duration.
func (c EmbeddingConfig) Backoff() time.Duration {
	if c.BackoffMillis <= 0 {
		return DefaultBackoff
	}
	return time.Duration(c.BackoffMillis) * time.Millisecond
}

// PollInterval returns the configured poll interval as a duration.
// Zero means use the client default.
func (c ScraperConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// JobTimeout returns the configured job timeout as a duration.
// Zero means use the client default.
func (c ScraperConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}
