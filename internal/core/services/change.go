package services

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// ContentHash returns the SHA-256 hex digest of content. It is the
// authoritative change signal for documents and the text component of
// embedding cache keys.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ChangeDetector decides whether a freshly scraped document needs
// re-processing.
//
// A missing document record or a missing stored hash always triggers
// processing. An origin-reported last-modified timestamp equal to the
// stored one is a fast path that skips hashing entirely; in every other
// case the content digest comparison decides, so the hash wins whenever
// the two signals could disagree.
type ChangeDetector struct{}

// NewChangeDetector creates a change detector.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// NeedsProcessing reports whether the document must be re-chunked and
// re-embedded. When it returns false the caller only refreshes the
// processed timestamp.
func (d *ChangeDetector) NeedsProcessing(existing *domain.Document, content string, lastModified *time.Time) bool {
	if existing == nil {
		return true
	}
	if existing.ContentHash == "" {
		return true
	}

	// Fast path: unchanged origin timestamp skips hashing.
	if lastModified != nil && existing.LastModified != nil && lastModified.Equal(*existing.LastModified) {
		return false
	}

	return ContentHash(content) != existing.ContentHash
}
