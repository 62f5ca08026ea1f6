package driving

import (
	"context"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// SearchService serves top-k semantic similarity queries over the store.
type SearchService interface {
	// SearchText embeds the query text and searches the store.
	SearchText(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// SearchVector searches the store with a pre-computed query vector.
	SearchVector(ctx context.Context, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
