package rules

import (
	"context"
	"sync"
	"time"
)

// InMemorySnapshotCache is an in-process implementation of SnapshotCache.
// Thread-safe for concurrent access.
type InMemorySnapshotCache struct {
	snapshot   *Snapshot
	cachedAt   time.Time
	generation uint64
	config     CacheConfig
	now        func() time.Time
	mu         sync.RWMutex
}

// NewInMemorySnapshotCache creates a new in-memory snapshot cache
func NewInMemorySnapshotCache(config CacheConfig) *InMemorySnapshotCache {
	return &InMemorySnapshotCache{
		config: config,
		now:    time.Now,
	}
}

// Get returns the cached snapshot, or nil if invalid or expired.
// The returned slices are copies; the elements are shared and must be
// treated as read-only.
func (c *InMemorySnapshotCache) Get(ctx context.Context) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.liveLocked() {
		return nil
	}
	return copySnapshot(c.snapshot)
}

// Generation returns the number of invalidations so far
func (c *InMemorySnapshotCache) Generation(ctx context.Context) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generation
}

// Set stores a snapshot if no invalidation happened since gen
func (c *InMemorySnapshotCache) Set(ctx context.Context, gen uint64, snapshot *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	c.snapshot = copySnapshot(snapshot)
	c.cachedAt = c.now()
}

// Invalidate clears the cache and rejects snapshots loaded before the call
func (c *InMemorySnapshotCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = nil
	c.generation++
}

// IsValid returns true if the cache contains a live snapshot
func (c *InMemorySnapshotCache) IsValid(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.liveLocked()
}

func (c *InMemorySnapshotCache) liveLocked() bool {
	if c.snapshot == nil {
		return false
	}
	if c.config.TTL > 0 {
		return c.now().Sub(c.cachedAt) <= c.config.TTL
	}
	return true
}

func copySnapshot(s *Snapshot) *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		Variables: make([]*Variable, len(s.Variables)),
		Rules:     make([]*Rule, len(s.Rules)),
	}
	copy(cp.Variables, s.Variables)
	copy(cp.Rules, s.Rules)
	return cp
}
