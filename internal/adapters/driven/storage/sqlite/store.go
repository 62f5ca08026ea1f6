// Package sqlite provides a file-backed vector store using SQLite.
//
// Embeddings are stored as little-endian float32 blobs and distances are
// computed in-process. Suitable for single-machine corpora; use the
// postgres store when an ANN index is needed.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/docvector/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Store is a SQLite-backed vector store.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// NewStore creates a SQLite store under the given data directory.
// If dataDir is empty, defaults to ~/.docvector/data/docvector.db.
// Vectors written to and queried from the store must have the given
// number of dimensions.
func NewStore(dataDir string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrConfiguration, dimensions)
	}

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docvector", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "docvector.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		dimensions: dimensions,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, base_url, identifier, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			base_url = excluded.base_url,
			identifier = excluded.identifier,
			metadata = excluded.metadata
	`, source.ID, source.Name, source.BaseURL, source.Identifier,
		string(metadataJSON), source.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting source: %w", err)
	}

	return s.GetSource(ctx, source.Name)
}

// GetSource retrieves a source by name.
func (s *Store) GetSource(ctx context.Context, name string) (*domain.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, base_url, identifier, last_processed_at, metadata, created_at
		FROM sources WHERE name = ?
	`, name)

	source, err := scanSource(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: source %q", domain.ErrNotFound, name)
		}
		return nil, err
	}
	return source, nil
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, base_url, identifier, last_processed_at, metadata, created_at
		FROM sources ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source //nolint:prealloc // size unknown from query
	for rows.Next() {
		var source domain.Source
		var lastProcessed sql.NullTime
		var metadataJSON string
		if err := rows.Scan(&source.ID, &source.Name, &source.BaseURL, &source.Identifier,
			&lastProcessed, &metadataJSON, &source.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		if lastProcessed.Valid {
			t := lastProcessed.Time
			source.LastProcessedAt = &t
		}
		if err := json.Unmarshal([]byte(metadataJSON), &source.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// TouchSource updates the source's last-processed timestamp.
func (s *Store) TouchSource(ctx context.Context, sourceID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sources SET last_processed_at = ? WHERE id = ?", at, sourceID)
	if err != nil {
		return fmt.Errorf("touching source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching source: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	return nil
}

// GetDocument retrieves a document by its (source, uri) pair.
func (s *Store) GetDocument(ctx context.Context, sourceID, uri string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, uri, title, content, content_hash, last_modified,
		       processed_at, metadata, created_at, updated_at
		FROM documents WHERE source_id = ? AND uri = ?
	`, sourceID, uri)

	doc, err := scanDocument(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: document %q in source %s", domain.ErrNotFound, uri, sourceID)
		}
		return nil, err
	}
	return doc, nil
}

// TouchDocument refreshes the document's processed timestamp.
func (s *Store) TouchDocument(ctx context.Context, documentID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET processed_at = ?, updated_at = ? WHERE id = ?", at, at, documentID)
	if err != nil {
		return fmt.Errorf("touching document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s", domain.ErrNotFound, documentID)
	}
	return nil
}

// ReplaceDocumentChunks upserts the document row, deletes its existing
// chunks and inserts the new set in a single transaction.
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_id, uri, title, content, content_hash,
			last_modified, processed_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			last_modified = excluded.last_modified,
			processed_at = excluded.processed_at,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, doc.ID, doc.SourceID, doc.URI, doc.Title, doc.Content, doc.ContentHash,
		nullTime(doc.LastModified), doc.ProcessedAt, string(metadataJSON),
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, content, chunk_index, embedding,
			embedding_model, token_count, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		chunkMetadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx, chunk.ID, doc.ID, chunk.Content, chunk.Index,
			float32SliceToBytes(chunk.Embedding), chunk.EmbeddingModel, chunk.TokenCount,
			string(chunkMetadataJSON), chunk.CreatedAt); err != nil {
			return fmt.Errorf("%w: inserting chunk %d: %v", domain.ErrStoreConflict, chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing replacement: %v", domain.ErrStoreConflict, err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, chunk_index, embedding, embedding_model,
		       token_count, metadata, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// searchCandidate carries the joined rows needed to build a result.
type searchCandidate struct {
	chunk      domain.Chunk
	docURI     string
	docTitle   string
	docMeta    string
	sourceName string
}

// Search loads candidate chunks, computes distances in-process and
// returns the top results by ascending distance.
func (s *Store) Search(ctx context.Context, query []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			domain.ErrConfiguration, len(query), s.dimensions)
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}

	sqlQuery := `
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.embedding,
		       c.embedding_model, c.token_count, c.metadata, c.created_at,
		       d.uri, d.title, d.metadata, s.name
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN sources s ON s.id = d.source_id
	`
	var args []any
	if opts.Filters.SourceName != "" {
		sqlQuery += " WHERE s.name = ?"
		args = append(args, opts.Filters.SourceName)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var candidates []searchCandidate
	for rows.Next() {
		var cand searchCandidate
		var embeddingBlob []byte
		var chunkMetadataJSON string
		if err := rows.Scan(&cand.chunk.ID, &cand.chunk.DocumentID, &cand.chunk.Content,
			&cand.chunk.Index, &embeddingBlob, &cand.chunk.EmbeddingModel,
			&cand.chunk.TokenCount, &chunkMetadataJSON, &cand.chunk.CreatedAt,
			&cand.docURI, &cand.docTitle, &cand.docMeta, &cand.sourceName); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		cand.chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
		if err := json.Unmarshal([]byte(chunkMetadataJSON), &cand.chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		var docMeta map[string]any
		if err := json.Unmarshal([]byte(cand.docMeta), &docMeta); err != nil {
			return nil, fmt.Errorf("unmarshaling document metadata: %w", err)
		}
		if !metadataMatches(docMeta, opts.Filters.DocumentMetadata) {
			continue
		}
		if !metadataMatches(cand.chunk.Metadata, opts.Filters.ChunkMetadata) {
			continue
		}

		distance, err := computeDistance(query, cand.chunk.Embedding, opts.Metric)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.SearchResult{
			Chunk:         cand.chunk,
			DocumentURI:   cand.docURI,
			DocumentTitle: cand.docTitle,
			SourceName:    cand.sourceName,
			Distance:      distance,
		})
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

// DeleteSource removes a source; documents and chunks cascade.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// nullTime converts an optional time to a driver-friendly value.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// scanSource scans a single source row.
func scanSource(row *sql.Row) (*domain.Source, error) {
	var source domain.Source
	var lastProcessed sql.NullTime
	var metadataJSON string

	if err := row.Scan(&source.ID, &source.Name, &source.BaseURL, &source.Identifier,
		&lastProcessed, &metadataJSON, &source.CreatedAt); err != nil {
		return nil, err
	}

	if lastProcessed.Valid {
		t := lastProcessed.Time
		source.LastProcessedAt = &t
	}
	if err := json.Unmarshal([]byte(metadataJSON), &source.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &source, nil
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var lastModified, processedAt sql.NullTime
	var metadataJSON string

	if err := row.Scan(&doc.ID, &doc.SourceID, &doc.URI, &doc.Title, &doc.Content,
		&doc.ContentHash, &lastModified, &processedAt, &metadataJSON,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}

	if lastModified.Valid {
		t := lastModified.Time
		doc.LastModified = &t
	}
	if processedAt.Valid {
		doc.ProcessedAt = processedAt.Time
	}
	if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &doc, nil
}

// scanChunk scans a chunk from *sql.Rows.
func scanChunk(rows *sql.Rows) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embeddingBlob []byte
	var metadataJSON string

	if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.Index,
		&embeddingBlob, &chunk.EmbeddingModel, &chunk.TokenCount,
		&metadataJSON, &chunk.CreatedAt); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
	}
	return &chunk, nil
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
