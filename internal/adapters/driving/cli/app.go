package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/docvector/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docvector/internal/adapters/driven/embedding"
	"github.com/custodia-labs/docvector/internal/adapters/driven/embedding/lrucache"
	"github.com/custodia-labs/docvector/internal/adapters/driven/scraper/crawl4ai"
	"github.com/custodia-labs/docvector/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docvector/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/docvector/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
	"github.com/custodia-labs/docvector/internal/core/ports/driving"
	"github.com/custodia-labs/docvector/internal/core/services"
	"github.com/custodia-labs/docvector/internal/logger"
	"github.com/custodia-labs/docvector/internal/postprocessors"
	"github.com/custodia-labs/docvector/internal/postprocessors/chunker"
	"github.com/custodia-labs/docvector/internal/tokenizer"
)

// Wired application services, populated by initApp.
var (
	appConfig     file.Config
	vectorStore   driven.VectorStore
	scrapeClient  driven.ScrapeClient
	ingestor      driving.Ingestor
	searchService driving.SearchService

	closers []func() error
)

// initApp builds the adapters and services from configuration.
func initApp() error {
	cfg, err := file.Load(configPath)
	if err != nil {
		return err
	}
	appConfig = cfg

	store, err := newStore(cfg.Storage)
	if err != nil {
		return err
	}
	vectorStore = store
	closers = append(closers, store.Close)

	providers := make([]driven.EmbeddingService, 0, len(cfg.Embedding.Providers))
	for _, pc := range cfg.Embedding.Providers {
		provider, err := embedding.NewProvider(embedding.ProviderConfig{
			Name:       pc.Name,
			Model:      pc.Model,
			BaseURL:    pc.BaseURL,
			APIKey:     pc.APIKey,
			Dimensions: pc.Dimensions,
		})
		if err != nil {
			return err
		}
		providers = append(providers, provider)
		closers = append(closers, provider.Close)
	}

	cache, err := lrucache.New(cfg.Embedding.CacheSize)
	if err != nil {
		return err
	}

	embedder, err := services.NewEmbeddingOrchestrator(providers, cache,
		services.WithMaxAttempts(cfg.Embedding.MaxAttempts),
		services.WithBackoff(cfg.Embedding.Backoff()),
		services.WithBatchSize(cfg.Embedding.BatchSize),
	)
	if err != nil {
		return err
	}

	scraper := crawl4ai.New(crawl4ai.Config{
		BaseURL:           cfg.Scraper.BaseURL,
		APIToken:          cfg.Scraper.APIToken,
		PollInterval:      cfg.Scraper.PollInterval(),
		JobTimeout:        cfg.Scraper.JobTimeout(),
		MaxConcurrentJobs: cfg.Scraper.MaxConcurrentJobs,
	})
	scrapeClient = scraper
	closers = append(closers, scraper.Close)

	tok, err := tokenizer.New()
	if err != nil {
		return fmt.Errorf("initialising tokenizer: %w", err)
	}

	pipeline := postprocessors.NewPipeline(
		chunker.New(tok,
			chunker.WithTargetTokens(cfg.Chunking.TargetTokens),
			chunker.WithOverlapTokens(cfg.Chunking.OverlapTokens),
			chunker.WithMinTokens(cfg.Chunking.MinTokens),
		),
	)

	ingestor = services.NewIngestOrchestrator(scraper, store, pipeline, embedder)
	searchService = services.NewSearchService(store, embedder)

	logger.Debug("application initialised (storage driver: %s)", cfg.Storage.Driver)
	return nil
}

// newStore creates the vector store selected by the storage config.
func newStore(cfg file.StorageConfig) (driven.VectorStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return sqlite.NewStore(cfg.DataDir, cfg.Dimensions)
	case "postgres":
		return postgres.NewStore(context.Background(), cfg.DSN, cfg.Dimensions)
	case "memory":
		return memory.NewStore(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", domain.ErrConfiguration, cfg.Driver)
	}
}

// closeApp releases everything initApp opened, last first.
func closeApp() error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closers = nil
	return firstErr
}
