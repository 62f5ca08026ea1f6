// Package memory provides an in-memory vector store.
// Useful for tests and small ephemeral workloads; all data is lost on close.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is an in-memory vector store, safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	sources    map[string]*domain.Source   // keyed by source ID
	documents  map[string]*domain.Document // keyed by document ID
	chunks     map[string][]domain.Chunk   // keyed by document ID, ordered by Index
}

// NewStore creates an empty in-memory store. Vectors written to and
// queried from the store must have the given number of dimensions.
func NewStore(dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrConfiguration, dimensions)
	}
	return &Store{
		dimensions: dimensions,
		sources:    make(map[string]*domain.Source),
		documents:  make(map[string]*domain.Document),
		chunks:     make(map[string][]domain.Chunk),
	}, nil
}

// UpsertSource registers a source by name, creating it if absent.
// The stored source is returned either way.
func (s *Store) UpsertSource(_ context.Context, source domain.Source) (*domain.Source, error) {
	if source.Name == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sources {
		if existing.Name == source.Name {
			existing.BaseURL = source.BaseURL
			existing.Identifier = source.Identifier
			if source.Metadata != nil {
				existing.Metadata = source.Metadata
			}
			out := *existing
			return &out, nil
		}
	}

	stored := source
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.sources[stored.ID] = &stored

	out := stored
	return &out, nil
}

// GetSource returns the source with the given name.
func (s *Store) GetSource(_ context.Context, name string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, source := range s.sources {
		if source.Name == name {
			out := *source
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: source %q", domain.ErrNotFound, name)
}

// ListSources returns all sources sorted by name.
func (s *Store) ListSources(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]domain.Source, 0, len(s.sources))
	for _, source := range s.sources {
		sources = append(sources, *source)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name < sources[j].Name
	})
	return sources, nil
}

// TouchSource updates the source's last processed timestamp.
func (s *Store) TouchSource(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	t := at
	source.LastProcessedAt = &t
	return nil
}

// GetDocument returns the document with the given URI under the source.
func (s *Store) GetDocument(_ context.Context, sourceID, uri string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.documents {
		if doc.SourceID == sourceID && doc.URI == uri {
			out := *doc
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: document %q in source %s", domain.ErrNotFound, uri, sourceID)
}

// TouchDocument updates the document's processed timestamp.
func (s *Store) TouchDocument(_ context.Context, documentID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	doc.ProcessedAt = at
	doc.UpdatedAt = at
	return nil
}

// ReplaceDocumentChunks stores the document and replaces all of its
// chunks in a single atomic step.
func (s *Store) ReplaceDocumentChunks(_ context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", domain.ErrInvalidInput)
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, store expects %d",
				domain.ErrConfiguration, chunk.ID, len(chunk.Embedding), s.dimensions)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[doc.SourceID]; !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, doc.SourceID)
	}

	stored := doc
	s.documents[doc.ID] = &stored

	replacement := make([]domain.Chunk, len(chunks))
	copy(replacement, chunks)
	sort.Slice(replacement, func(i, j int) bool {
		return replacement[i].Index < replacement[j].Index
	})
	s.chunks[doc.ID] = replacement
	return nil
}

// GetChunks returns the document's chunks ordered by index.
func (s *Store) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[documentID]; !ok {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	chunks := s.chunks[documentID]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// Search returns the chunks nearest to the query vector.
func (s *Store) Search(_ context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			domain.ErrConfiguration, len(query), s.dimensions)
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.SearchResult
	for docID, chunks := range s.chunks {
		doc := s.documents[docID]
		if doc == nil {
			continue
		}
		source := s.sources[doc.SourceID]
		if source == nil {
			continue
		}
		if opts.Filters.SourceName != "" && source.Name != opts.Filters.SourceName {
			continue
		}
		if !metadataMatches(doc.Metadata, opts.Filters.DocumentMetadata) {
			continue
		}

		for _, chunk := range chunks {
			if !metadataMatches(chunk.Metadata, opts.Filters.ChunkMetadata) {
				continue
			}
			distance, err := computeDistance(query, chunk.Embedding, opts.Metric)
			if err != nil {
				return nil, err
			}
			results = append(results, domain.SearchResult{
				Chunk:         chunk,
				DocumentURI:   doc.URI,
				DocumentTitle: doc.Title,
				SourceName:    source.Name,
				Distance:      distance,
			})
		}
	}

	// Ascending distance, chunk ID breaks ties for a stable order.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if opts.Offset >= len(results) {
		return []domain.SearchResult{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// DeleteSource removes a source and all of its documents and chunks.
func (s *Store) DeleteSource(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[sourceID]; !ok {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	delete(s.sources, sourceID)
	for docID, doc := range s.documents {
		if doc.SourceID == sourceID {
			delete(s.documents, docID)
			delete(s.chunks, docID)
		}
	}
	return nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// metadataMatches reports whether all filter entries are present in the
// metadata with equal string values. An empty filter matches everything.
func metadataMatches(metadata map[string]any, filter map[string]string) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// computeDistance returns the distance between two vectors under the
// given metric. Inner product is negated so ascending order ranks the
// most similar vectors first for every metric.
func computeDistance(a, b []float32, metric domain.DistanceMetric) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector length mismatch %d != %d", domain.ErrConfiguration, len(a), len(b))
	}

	switch metric {
	case domain.MetricCosine, "":
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			return 1, nil
		}
		return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil

	case domain.MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum), nil

	case domain.MetricInnerProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot, nil

	default:
		return 0, fmt.Errorf("%w: unknown distance metric %q", domain.ErrConfiguration, metric)
	}
}
