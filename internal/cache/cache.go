// Package cache provides time-boxed memoization for expensive aggregate
// queries. The cache is TTL-agnostic: callers choose the TTL per entry and
// an expired entry is indistinguishable from an absent one.
package cache

import (
	"context"
	"time"
)

// Cache is a concurrency-safe key/value store with per-entry expiration.
// Implementations are injected, never process-global, so tests can
// substitute a fresh instance.
type Cache interface {
	// Get returns the stored value and true, or (nil, false) on a miss.
	// An entry past its TTL is a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key for ttl. Concurrent puts on the same key
	// are last-write-wins.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
