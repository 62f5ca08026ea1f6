package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
	"github.com/custodia-labs/docvector/internal/core/ports/driving"
	"github.com/custodia-labs/docvector/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// DefaultSearchK is the result count used when the caller passes none.
const DefaultSearchK = 10

// SearchService serves similarity queries. Query text is embedded
// through the same orchestrator used for ingestion, so cached chunks
// and fallback behaviour apply to queries as well.
type SearchService struct {
	store    driven.VectorStore
	embedder *EmbeddingOrchestrator
}

// NewSearchService creates a new search service.
func NewSearchService(store driven.VectorStore, embedder *EmbeddingOrchestrator) *SearchService {
	return &SearchService{
		store:    store,
		embedder: embedder,
	}
}

// SearchText embeds the query text and searches the store.
func (s *SearchService) SearchText(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchResult{}, nil
	}

	vectors, _, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.SearchVector(ctx, vectors[0], opts)
}

// SearchVector searches the store with a pre-computed query vector.
func (s *SearchService) SearchVector(ctx context.Context, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}

	metric, err := domain.ParseDistanceMetric(string(opts.Metric))
	if err != nil {
		return nil, err
	}
	opts.Metric = metric

	if opts.K <= 0 {
		opts.K = DefaultSearchK
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	logger.Debug("Search: k=%d metric=%s offset=%d source=%q",
		opts.K, opts.Metric, opts.Offset, opts.Filters.SourceName)

	results, err := s.store.Search(ctx, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	logger.Debug("Search returned %d results", len(results))
	return results, nil
}
