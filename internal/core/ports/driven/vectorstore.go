package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// VectorStore persists the source → document → chunk hierarchy together
// with chunk embeddings, and executes similarity search.
//
// Ownership is strictly single-direction: a source exclusively owns its
// documents and a document its chunks. Deleting a source cascades.
// Chunk sets are replaced wholesale per document, never mutated in place.
type VectorStore interface {
	// UpsertSource creates or updates a source, idempotent by unique
	// name, and returns the stored record.
	UpsertSource(ctx context.Context, source domain.Source) (*domain.Source, error)

	// GetSource retrieves a source by name.
	GetSource(ctx context.Context, name string) (*domain.Source, error)

	// ListSources returns all registered sources.
	ListSources(ctx context.Context) ([]domain.Source, error)

	// TouchSource updates the source's last-processed timestamp.
	TouchSource(ctx context.Context, sourceID string, at time.Time) error

	// GetDocument retrieves a document by its (source, locator) pair.
	GetDocument(ctx context.Context, sourceID, uri string) (*domain.Document, error)

	// TouchDocument refreshes a document's processed timestamp without
	// touching its chunks. Used when change detection skips re-ingestion.
	TouchDocument(ctx context.Context, documentID string, at time.Time) error

	// ReplaceDocumentChunks atomically upserts the document row, deletes
	// any existing chunks, and inserts the full new chunk set. Either
	// all of it becomes visible or none of it. Concurrent replacements
	// for the same document are serialised.
	ReplaceDocumentChunks(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error

	// GetChunks returns all chunks for a document ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Search returns up to K chunks ordered by ascending distance under
	// the chosen metric, with ties broken by ascending chunk id. A query
	// vector whose dimensionality does not match the store's configured
	// dimension is a configuration error. No matches is an empty slice,
	// not an error.
	Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// DeleteSource removes a source and cascades to its documents and
	// chunks.
	DeleteSource(ctx context.Context, sourceID string) error

	// Close releases resources.
	Close() error
}
