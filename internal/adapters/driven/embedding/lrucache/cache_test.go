package lrucache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NonPositiveSizeUsesDefault(t *testing.T) {
	cache, err := New(0)

	require.NoError(t, err)
	cache.Add("key", []float32{1})
	_, ok := cache.Get("key")
	assert.True(t, ok)
}

func TestCache_GetMiss(t *testing.T) {
	cache, err := New(4)
	require.NoError(t, err)

	vec, ok := cache.Get("missing")

	assert.False(t, ok)
	assert.Nil(t, vec)
}

func TestCache_AddAndGet(t *testing.T) {
	cache, err := New(4)
	require.NoError(t, err)

	cache.Add("key", []float32{1, 2, 3})

	vec, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := New(2)
	require.NoError(t, err)

	cache.Add("a", []float32{1})
	cache.Add("b", []float32{2})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Add("c", []float32{3})

	_, ok = cache.Get("b")
	assert.False(t, ok)
	_, ok = cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestCache_BoundedUnderChurn(t *testing.T) {
	cache, err := New(8)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		cache.Add(fmt.Sprintf("key-%d", i), []float32{float32(i)})
	}

	assert.Equal(t, 8, cache.Len())
}
