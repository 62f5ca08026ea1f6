// Package domain contains the core business entities for docvector:
// sources, documents, chunks, scrape jobs, and search types.
// It has no dependencies on adapters or infrastructure.
package domain
