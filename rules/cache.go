package rules

import (
	"context"
	"time"
)

// SnapshotCache provides an abstraction for caching the registry and rule
// list between evaluations.
// This allows swapping between in-memory, Redis, or no caching at all.
//
// A reader that misses records Generation before loading from the stores and
// passes it to Set. Invalidate moves the generation on, so a snapshot loaded
// before a mutation is never stored after it.
type SnapshotCache interface {
	// Get retrieves the cached snapshot, returns nil on a miss or expiry
	Get(ctx context.Context) *Snapshot

	// Generation returns the current invalidation generation
	Generation(ctx context.Context) uint64

	// Set stores a snapshot unless the cache was invalidated after gen was read
	Set(ctx context.Context, gen uint64, snapshot *Snapshot)

	// Invalidate clears the cache, forcing a reload on next Get
	Invalidate(ctx context.Context)

	// IsValid returns true if the cache holds a live snapshot
	IsValid(ctx context.Context) bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for a cached snapshot.
	// Set to 0 for no expiration (invalidation on mutation only).
	TTL time.Duration
}

// DefaultCacheConfig returns the defaults used by the server
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 30 * time.Second,
	}
}

// NopSnapshotCache never holds anything, so every evaluation reads the stores
type NopSnapshotCache struct{}

func (NopSnapshotCache) Get(context.Context) *Snapshot          { return nil }
func (NopSnapshotCache) Generation(context.Context) uint64      { return 0 }
func (NopSnapshotCache) Set(context.Context, uint64, *Snapshot) {}
func (NopSnapshotCache) Invalidate(context.Context)             {}
func (NopSnapshotCache) IsValid(context.Context) bool           { return false }
