package cache_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-message-archive/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects non-positive size", func(t *testing.T) {
		_, err := cache.NewInMemoryLRUCache[string, int](0)
		require.Error(t, err)
	})

	t.Run("Eviction policy works correctly", func(t *testing.T) {
		// Arrange
		lru, err := cache.NewInMemoryLRUCache[string, int](2)
		require.NoError(t, err)

		// Act 1: Fill the cache.
		require.NoError(t, lru.WriteToCache(ctx, "key1", 1))
		require.NoError(t, lru.WriteToCache(ctx, "key2", 2))

		// Act 2: Touch key1 so that key2 becomes the least recently used.
		val1, err := lru.FetchFromCache(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, 1, val1)

		// Act 3: Adding key3 should evict key2.
		require.NoError(t, lru.WriteToCache(ctx, "key3", 3))

		// Assert
		assert.Equal(t, 2, lru.Len())
		_, err = lru.FetchFromCache(ctx, "key2")
		assert.ErrorIs(t, err, cache.ErrCacheMiss, "key2 should have been evicted")
		val3, err := lru.FetchFromCache(ctx, "key3")
		require.NoError(t, err)
		assert.Equal(t, 3, val3)
	})

	t.Run("Overwrite keeps a single entry", func(t *testing.T) {
		lru, err := cache.NewInMemoryLRUCache[string, int](2)
		require.NoError(t, err)

		require.NoError(t, lru.WriteToCache(ctx, "k", 1))
		require.NoError(t, lru.WriteToCache(ctx, "k", 2))

		got, err := lru.FetchFromCache(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 2, got)
		assert.Equal(t, 1, lru.Len())
	})

	t.Run("Invalidate and reset", func(t *testing.T) {
		lru, err := cache.NewInMemoryLRUCache[string, int](3)
		require.NoError(t, err)
		require.NoError(t, lru.WriteToCache(ctx, "a", 1))
		require.NoError(t, lru.WriteToCache(ctx, "b", 2))

		require.NoError(t, lru.Invalidate(ctx, "a"))
		_, err = lru.FetchFromCache(ctx, "a")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
		assert.Equal(t, 1, lru.Len())

		lru.Reset()
		assert.Equal(t, 0, lru.Len())
	})
}
