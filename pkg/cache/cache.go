// Package cache provides the process-scoped and shared caches used by the
// archive pipeline: content lookups, deduplication windows.
package cache

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned (wrapped) when a key is not present in a cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a generic interface for a caching layer.
type Cache[K any, V any] interface {
	// FetchFromCache retrieves an item from the cache.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds an item to the cache.
	WriteToCache(ctx context.Context, key K, value V) error
}
