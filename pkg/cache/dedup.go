package cache

import (
	"context"
	"time"
)

// DefaultDedupWindow matches the deduplication interval of FIFO queues.
const DefaultDedupWindow = 5 * time.Minute

// Deduplicator tracks deduplication identifiers over a time window. A key
// can only be claimed once until it expires or is released.
type Deduplicator interface {
	// Claim records key with value and reports whether this caller is the
	// first to do so. A caller that is not first gets the value stored by the
	// first claimant.
	Claim(ctx context.Context, key, value string) (stored string, first bool, err error)
	// Release forgets key so that a failed send can be retried.
	Release(ctx context.Context, key string) error
}
