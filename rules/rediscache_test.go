package rules

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestRedisSnapshotCacheUnavailable verifies an unreachable Redis degrades to cache misses
func TestRedisSnapshotCacheUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cache := NewRedisSnapshotCache(client, "", DefaultCacheConfig())
	if cache.key != DefaultRedisKey {
		t.Errorf("Expected default key %q, got %q", DefaultRedisKey, cache.key)
	}

	ctx := context.Background()
	if gen := cache.Generation(ctx); gen != 0 {
		t.Errorf("Generation() = %d, want 0 when Redis is unreachable", gen)
	}
	cache.Set(ctx, 0, testSnapshot())
	cache.Invalidate(ctx)

	if cache.Get(ctx) != nil {
		t.Error("Get() should miss when Redis is unreachable")
	}
	if cache.IsValid(ctx) {
		t.Error("IsValid() should be false when Redis is unreachable")
	}
}

// TestEngineWithUnavailableRedis verifies evaluation falls back to the stores
func TestEngineWithUnavailableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	engine := newTestEngine(t, WithCache(NewRedisSnapshotCache(client, "", DefaultCacheConfig())))
	mustVariable(t, engine, "a", TypeInteger)
	rule := mustRule(t, engine, "a > 0", "positive")

	results, err := engine.Evaluate(context.Background(), map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if len(results) != 1 || results[0].RuleID != rule.ID {
		t.Errorf("Evaluate() = %+v", results)
	}
}
