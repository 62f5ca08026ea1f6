// Package postgres provides a vector store backed by PostgreSQL with the
// pgvector extension. Distance ranking runs inside the database, so this
// is the store to use for large corpora.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is a PostgreSQL-backed vector store.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewStore connects to PostgreSQL and prepares the schema. Vectors
// written to and queried from the store must have the given number of
// dimensions; the chunks table is created with that vector width.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrConfiguration, dimensions)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", domain.ErrConfiguration)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing postgres DSN: %v", domain.ErrConfiguration, err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &Store{
		pool:       pool,
		dimensions: dimensions,
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the extension and tables if they do not exist.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			base_url TEXT NOT NULL DEFAULT '',
			identifier TEXT NOT NULL DEFAULT '',
			last_processed_at TIMESTAMPTZ,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			uri TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			last_modified TIMESTAMPTZ,
			processed_at TIMESTAMPTZ,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(source_id, uri)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding vector(%d),
			embedding_model TEXT NOT NULL DEFAULT '',
			token_count INTEGER NOT NULL DEFAULT 0,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(document_id, chunk_index)
		)`, s.dimensions),
		"CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)",
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("preparing schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertSource creates or updates a source keyed by its unique name.
func (s *Store) UpsertSource(ctx context.Context, source domain.Source) (*domain.Source, error) {
	if source.Name == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}

	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now().UTC()
	}
	metadataJSON, err := json.Marshal(source.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sources (id, name, base_url, identifier, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			base_url = excluded.base_url,
			identifier = excluded.identifier,
			metadata = excluded.metadata
	`, source.ID, source.Name, source.BaseURL, source.Identifier,
		metadataJSON, source.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting source: %w", err)
	}

	return s.GetSource(ctx, source.Name)
}

// GetSource retrieves a source by name.
func (s *Store) GetSource(ctx context.Context, name string) (*domain.Source, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, base_url, identifier, last_processed_at, metadata, created_at
		FROM sources WHERE name = $1
	`, name)

	source, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: source %q", domain.ErrNotFound, name)
		}
		return nil, err
	}
	return source, nil
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, base_url, identifier, last_processed_at, metadata, created_at
		FROM sources ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source //nolint:prealloc // size unknown from query
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// TouchSource updates the source's last-processed timestamp.
func (s *Store) TouchSource(ctx context.Context, sourceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE sources SET last_processed_at = $1 WHERE id = $2", at, sourceID)
	if err != nil {
		return fmt.Errorf("touching source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	return nil
}

// GetDocument retrieves a document by its (source, uri) pair.
func (s *Store) GetDocument(ctx context.Context, sourceID, uri string) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_id, uri, title, content, content_hash, last_modified,
		       processed_at, metadata, created_at, updated_at
		FROM documents WHERE source_id = $1 AND uri = $2
	`, sourceID, uri)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %q in source %s", domain.ErrNotFound, uri, sourceID)
		}
		return nil, err
	}
	return doc, nil
}

// TouchDocument refreshes the document's processed timestamp.
func (s *Store) TouchDocument(ctx context.Context, documentID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE documents SET processed_at = $1, updated_at = $1 WHERE id = $2", at, documentID)
	if err != nil {
		return fmt.Errorf("touching document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	return nil
}

// ReplaceDocumentChunks upserts the document row, deletes its existing
// chunks and inserts the new set in a single transaction. The document
// row is locked for the duration, serialising concurrent replacements.
func (s *Store) ReplaceDocumentChunks(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", domain.ErrInvalidInput)
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, store expects %d",
				domain.ErrConfiguration, chunk.ID, len(chunk.Embedding), s.dimensions)
		}
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, source_id, uri, title, content, content_hash,
			last_modified, processed_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			last_modified = excluded.last_modified,
			processed_at = excluded.processed_at,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, doc.ID, doc.SourceID, doc.URI, doc.Title, doc.Content, doc.ContentHash,
		doc.LastModified, doc.ProcessedAt, metadataJSON, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	// Lock the document row so concurrent replacements serialise.
	if _, err := tx.Exec(ctx, "SELECT id FROM documents WHERE id = $1 FOR UPDATE", doc.ID); err != nil {
		return fmt.Errorf("locking document: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", doc.ID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		chunkMetadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, content, chunk_index, embedding,
				embedding_model, token_count, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, chunk.ID, doc.ID, chunk.Content, chunk.Index,
			pgvector.NewVector(chunk.Embedding), chunk.EmbeddingModel,
			chunk.TokenCount, chunkMetadataJSON, chunk.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: inserting chunks: %v", domain.ErrStoreConflict, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing replacement: %v", domain.ErrStoreConflict, err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, chunk_index, embedding, embedding_model,
		       token_count, metadata, created_at
		FROM chunks WHERE document_id = $1
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var embedding pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.Index,
			&embedding, &chunk.EmbeddingModel, &chunk.TokenCount,
			&chunk.Metadata, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// distanceOperator maps a metric to its pgvector operator. The inner
// product operator already returns the negated dot product, so ascending
// order ranks the most similar vectors first for every metric.
func distanceOperator(metric domain.DistanceMetric) (string, error) {
	switch metric {
	case domain.MetricCosine, "":
		return "<=>", nil
	case domain.MetricEuclidean:
		return "<->", nil
	case domain.MetricInnerProduct:
		return "<#>", nil
	default:
		return "", fmt.Errorf("%w: unknown distance metric %q", domain.ErrConfiguration, metric)
	}
}

// Search ranks chunks by distance inside the database.
func (s *Store) Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			domain.ErrConfiguration, len(query), s.dimensions)
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	operator, err := distanceOperator(opts.Metric)
	if err != nil {
		return nil, err
	}

	args := []any{pgvector.NewVector(query)}
	sqlQuery := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.embedding,
		       c.embedding_model, c.token_count, c.metadata, c.created_at,
		       d.uri, d.title, s.name, c.embedding %s $1 AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN sources s ON s.id = d.source_id
		WHERE c.embedding IS NOT NULL
	`, operator)

	if opts.Filters.SourceName != "" {
		args = append(args, opts.Filters.SourceName)
		sqlQuery += fmt.Sprintf(" AND s.name = $%d", len(args))
	}
	if len(opts.Filters.DocumentMetadata) > 0 {
		filterJSON, err := json.Marshal(opts.Filters.DocumentMetadata)
		if err != nil {
			return nil, fmt.Errorf("marshalling document filter: %w", err)
		}
		args = append(args, filterJSON)
		sqlQuery += fmt.Sprintf(" AND d.metadata @> $%d", len(args))
	}
	if len(opts.Filters.ChunkMetadata) > 0 {
		filterJSON, err := json.Marshal(opts.Filters.ChunkMetadata)
		if err != nil {
			return nil, fmt.Errorf("marshalling chunk filter: %w", err)
		}
		args = append(args, filterJSON)
		sqlQuery += fmt.Sprintf(" AND c.metadata @> $%d", len(args))
	}

	args = append(args, opts.K)
	limitIdx := len(args)
	args = append(args, opts.Offset)
	offsetIdx := len(args)
	sqlQuery += fmt.Sprintf(" ORDER BY distance, c.id LIMIT $%d OFFSET $%d", limitIdx, offsetIdx)

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0, opts.K)
	for rows.Next() {
		var result domain.SearchResult
		var embedding pgvector.Vector
		if err := rows.Scan(&result.Chunk.ID, &result.Chunk.DocumentID, &result.Chunk.Content,
			&result.Chunk.Index, &embedding, &result.Chunk.EmbeddingModel,
			&result.Chunk.TokenCount, &result.Chunk.Metadata, &result.Chunk.CreatedAt,
			&result.DocumentURI, &result.DocumentTitle, &result.SourceName,
			&result.Distance); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		result.Chunk.Embedding = embedding.Slice()
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// DeleteSource removes a source; documents and chunks cascade.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sources WHERE id = $1", sourceID)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSource scans a single source row.
func scanSource(row rowScanner) (*domain.Source, error) {
	var source domain.Source
	var lastProcessed *time.Time

	if err := row.Scan(&source.ID, &source.Name, &source.BaseURL, &source.Identifier,
		&lastProcessed, &source.Metadata, &source.CreatedAt); err != nil {
		return nil, err
	}
	source.LastProcessedAt = lastProcessed
	return &source, nil
}

// scanDocument scans a single document row.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var lastModified, processedAt *time.Time

	if err := row.Scan(&doc.ID, &doc.SourceID, &doc.URI, &doc.Title, &doc.Content,
		&doc.ContentHash, &lastModified, &processedAt, &doc.Metadata,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}

	doc.LastModified = lastModified
	if processedAt != nil {
		doc.ProcessedAt = *processedAt
	}
	return &doc, nil
}
