package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(3)
	require.NoError(t, err)
	return store
}

func seedDocument(t *testing.T, store *Store, sourceName, docID, uri string, chunks []domain.Chunk) *domain.Source {
	t.Helper()
	ctx := context.Background()

	source, err := store.UpsertSource(ctx, domain.Source{Name: sourceName})
	require.NoError(t, err)

	now := time.Now().UTC()
	doc := domain.Document{
		ID:        docID,
		SourceID:  source.ID,
		URI:       uri,
		Title:     "Title " + docID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.ReplaceDocumentChunks(ctx, doc, chunks))
	return source
}

func TestNewStore_RejectsNonPositiveDimensions(t *testing.T) {
	_, err := NewStore(0)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStore_UpsertSource_IdempotentByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertSource(ctx, domain.Source{Name: "docs", BaseURL: "https://a"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := store.UpsertSource(ctx, domain.Source{Name: "docs", BaseURL: "https://b"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "https://b", second.BaseURL)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestStore_UpsertSource_RequiresName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpsertSource(context.Background(), domain.Source{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_GetSource_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSource(context.Background(), "missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_TouchSource_SetsTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source, err := store.UpsertSource(ctx, domain.Source{Name: "docs"})
	require.NoError(t, err)
	require.Nil(t, source.LastProcessedAt)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchSource(ctx, source.ID, at))

	stored, err := store.GetSource(ctx, "docs")
	require.NoError(t, err)
	require.NotNil(t, stored.LastProcessedAt)
	assert.True(t, stored.LastProcessedAt.Equal(at))
}

func TestStore_ReplaceDocumentChunks_ReplacesWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := seedDocument(t, store, "docs", "doc-1", "https://d/a", []domain.Chunk{
		{ID: "old-1", DocumentID: "doc-1", Index: 0, Content: "old", Embedding: []float32{1, 0, 0}},
		{ID: "old-2", DocumentID: "doc-1", Index: 1, Content: "old", Embedding: []float32{0, 1, 0}},
	})

	doc, err := store.GetDocument(ctx, source.ID, "https://d/a")
	require.NoError(t, err)

	replacement := []domain.Chunk{
		{ID: "new-1", DocumentID: doc.ID, Index: 0, Content: "new", Embedding: []float32{0, 0, 1}},
	}
	require.NoError(t, store.ReplaceDocumentChunks(ctx, *doc, replacement))

	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new-1", chunks[0].ID)
}

func TestStore_ReplaceDocumentChunks_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source, err := store.UpsertSource(ctx, domain.Source{Name: "docs"})
	require.NoError(t, err)

	doc := domain.Document{ID: "doc-1", SourceID: source.ID, URI: "https://d/a"}
	err = store.ReplaceDocumentChunks(ctx, doc, []domain.Chunk{
		{ID: "c-1", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStore_GetChunks_OrderedByIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, "docs", "doc-1", "https://d/a", []domain.Chunk{
		{ID: "c-2", DocumentID: "doc-1", Index: 2, Embedding: []float32{0, 0, 1}},
		{ID: "c-0", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0, 0}},
		{ID: "c-1", DocumentID: "doc-1", Index: 1, Embedding: []float32{0, 1, 0}},
	})

	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestStore_Search_TieBreaksOnChunkID(t *testing.T) {
	store := newTestStore(t)

	seedDocument(t, store, "docs", "doc-1", "https://d/a", []domain.Chunk{
		{ID: "b-chunk", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0, 0}},
		{ID: "a-chunk", DocumentID: "doc-1", Index: 1, Embedding: []float32{1, 0, 0}},
	})

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, domain.SearchOptions{K: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a-chunk", results[0].Chunk.ID)
	assert.Equal(t, "b-chunk", results[1].Chunk.ID)
}

func TestStore_Search_MetadataFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source, err := store.UpsertSource(ctx, domain.Source{Name: "docs"})
	require.NoError(t, err)

	doc := domain.Document{
		ID: "doc-1", SourceID: source.ID, URI: "https://d/a",
		Metadata: map[string]any{"lang": "en"},
	}
	require.NoError(t, store.ReplaceDocumentChunks(ctx, doc, []domain.Chunk{
		{ID: "c-1", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0, 0},
			Metadata: map[string]any{"section": "intro"}},
		{ID: "c-2", DocumentID: "doc-1", Index: 1, Embedding: []float32{1, 0, 0},
			Metadata: map[string]any{"section": "api"}},
	}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, domain.SearchOptions{
		K: 10,
		Filters: domain.SearchFilters{
			DocumentMetadata: map[string]string{"lang": "en"},
			ChunkMetadata:    map[string]string{"section": "api"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c-2", results[0].Chunk.ID)

	none, err := store.Search(ctx, []float32{1, 0, 0}, domain.SearchOptions{
		K:       10,
		Filters: domain.SearchFilters{DocumentMetadata: map[string]string{"lang": "de"}},
	})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Search_MetricEuclideanAndInnerProduct(t *testing.T) {
	store := newTestStore(t)

	seedDocument(t, store, "docs", "doc-1", "https://d/a", []domain.Chunk{
		{ID: "near", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0, 0}},
		{ID: "big", DocumentID: "doc-1", Index: 1, Embedding: []float32{3, 0, 0}},
	})
	ctx := context.Background()

	euclid, err := store.Search(ctx, []float32{1, 0, 0}, domain.SearchOptions{
		K: 2, Metric: domain.MetricEuclidean,
	})
	require.NoError(t, err)
	assert.Equal(t, "near", euclid[0].Chunk.ID)

	// Inner product favours the larger vector.
	inner, err := store.Search(ctx, []float32{1, 0, 0}, domain.SearchOptions{
		K: 2, Metric: domain.MetricInnerProduct,
	})
	require.NoError(t, err)
	assert.Equal(t, "big", inner[0].Chunk.ID)
	assert.Less(t, inner[0].Distance, inner[1].Distance)
}

func TestStore_Search_OffsetBeyondResults(t *testing.T) {
	store := newTestStore(t)
	seedDocument(t, store, "docs", "doc-1", "https://d/a", []domain.Chunk{
		{ID: "c-1", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0, 0}},
	})

	results, err := store.Search(context.Background(), []float32{1, 0, 0},
		domain.SearchOptions{K: 10, Offset: 5})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_Search_InvalidK(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Search(context.Background(), []float32{1, 0, 0}, domain.SearchOptions{K: 0})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_DeleteSource_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := seedDocument(t, store, "docs", "doc-1", "https://d/a", []domain.Chunk{
		{ID: "c-1", DocumentID: "doc-1", Index: 0, Embedding: []float32{1, 0, 0}},
	})

	require.NoError(t, store.DeleteSource(ctx, source.ID))

	_, err := store.GetSource(ctx, "docs")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetDocument(ctx, source.ID, "https://d/a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	results, err := store.Search(ctx, []float32{1, 0, 0}, domain.SearchOptions{K: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_TouchDocument_UpdatesProcessedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	source := seedDocument(t, store, "docs", "doc-1", "https://d/a", nil)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchDocument(ctx, "doc-1", at))

	doc, err := store.GetDocument(ctx, source.ID, "https://d/a")
	require.NoError(t, err)
	assert.True(t, doc.ProcessedAt.Equal(at))

	assert.ErrorIs(t, store.TouchDocument(ctx, "missing", at), domain.ErrNotFound)
}
