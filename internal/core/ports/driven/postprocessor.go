package driven

import (
	"context"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// PostProcessor processes document content to produce chunks.
// PostProcessors are chained in a pipeline; the chunker is the first
// and creates chunks, later processors may refine them.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a document and returns chunks. A chunk-creating
	// processor receives nil chunks; a chunk-modifying one receives and
	// returns them.
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the document through all processors in order and
	// returns the final chunks.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
