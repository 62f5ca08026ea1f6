package domain

import "time"

// Source represents a registered origin of documents, typically one
// documentation site. Sources are identified by their unique name and
// exclusively own the documents produced from them.
type Source struct {
	// ID is the unique identifier for the source.
	ID string

	// Name is the unique, human-readable name (e.g. "docsA").
	Name string

	// BaseURL is the optional base locator for the source.
	BaseURL string

	// Identifier is an optional version or release tag.
	Identifier string

	// LastProcessedAt is when the last full ingestion run completed.
	// Nil until the first run for the source finishes.
	LastProcessedAt *time.Time

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the source was first registered.
	CreatedAt time.Time
}
