// Package lrucache provides a bounded in-memory embedding cache.
package lrucache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// DefaultSize is the default number of cached embeddings.
const DefaultSize = 8192

// Cache is an LRU embedding cache. It is safe for concurrent use.
type Cache struct {
	inner *lru.Cache[string, []float32]
}

// New creates a cache holding up to size embeddings.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached vector for the key, if present.
func (c *Cache) Get(key string) ([]float32, bool) {
	return c.inner.Get(key)
}

// Add stores a vector under the key.
func (c *Cache) Add(key string, embedding []float32) {
	c.inner.Add(key, embedding)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	return c.inner.Len()
}
