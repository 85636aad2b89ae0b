package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryDeduplicator is a thread-safe, in-memory Deduplicator.
// It is primarily intended for single-instance deployments and testing.
type InMemoryDeduplicator struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]dedupEntry
	now    func() time.Time
}

type dedupEntry struct {
	value  string
	expiry time.Time
}

// NewInMemoryDeduplicator creates a deduplicator. A non-positive window uses DefaultDedupWindow.
func NewInMemoryDeduplicator(window time.Duration) *InMemoryDeduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &InMemoryDeduplicator{
		window: window,
		seen:   make(map[string]dedupEntry),
		now:    time.Now,
	}
}

// Claim implements Deduplicator. Expired entries are swept on each call.
func (d *InMemoryDeduplicator) Claim(_ context.Context, key, value string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, entry := range d.seen {
		if !now.Before(entry.expiry) {
			delete(d.seen, k)
		}
	}

	if entry, ok := d.seen[key]; ok {
		return entry.value, false, nil
	}
	d.seen[key] = dedupEntry{value: value, expiry: now.Add(d.window)}
	return value, true, nil
}

// Release implements Deduplicator.
func (d *InMemoryDeduplicator) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}
