package domain

import "time"

// Document represents one retrievable item within a Source.
// The (SourceID, URI) pair is unique. A document exclusively owns its
// chunks; the entire chunk set is replaced atomically on re-ingestion.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// SourceID links to the owning Source.
	SourceID string

	// URI is the locator (URL or path), unique within the source.
	URI string

	// Title is the human-readable title.
	Title string

	// Content is the full normalised markdown text before chunking.
	Content string

	// ContentHash is the SHA-256 hex digest of Content, used for
	// change detection.
	ContentHash string

	// LastModified is the origin-reported modification time, if any.
	LastModified *time.Time

	// ProcessedAt is when the document was last ingested or confirmed
	// unchanged.
	ProcessedAt time.Time

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document content last changed.
	UpdatedAt time.Time
}

// Chunk represents one embedded text segment belonging to a Document.
// Chunk indices are contiguous from 0 within a document, and all chunks
// of one document version share a single embedding model.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Content is the text content of this chunk.
	Content string

	// Index is the zero-based ordinal position within the document.
	Index int

	// Embedding is the vector representation for similarity search.
	Embedding []float32

	// EmbeddingModel identifies the model that produced Embedding.
	EmbeddingModel string

	// TokenCount is the number of tokens in Content.
	TokenCount int

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the chunk was created.
	CreatedAt time.Time
}
