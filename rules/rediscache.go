package rules

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/liamcoop/ruleeval/internal/logger"
)

// DefaultRedisKey is where the snapshot is stored unless overridden
const DefaultRedisKey = "ruleeval:snapshot"

var errStaleSnapshot = errors.New("snapshot cache invalidated during load")

// RedisClient is the part of a go-redis client the snapshot cache uses.
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// RedisSnapshotCache shares a snapshot between server replicas through Redis.
// Redis failures degrade to a cache miss; the stores stay authoritative.
//
// The generation lives in its own key next to the snapshot. Invalidate bumps
// it in the same transaction that deletes the snapshot, and Set only writes
// while the generation still matches, so any replica's mutation wins over a
// concurrent load.
type RedisSnapshotCache struct {
	client RedisClient
	key    string
	genKey string
	config CacheConfig
}

// NewRedisSnapshotCache creates a cache storing the snapshot under key.
// An empty key selects DefaultRedisKey.
func NewRedisSnapshotCache(client RedisClient, key string, config CacheConfig) *RedisSnapshotCache {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSnapshotCache{client: client, key: key, genKey: key + ":generation", config: config}
}

func (c *RedisSnapshotCache) Get(ctx context.Context) *Snapshot {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		logger.Warn("Snapshot cache read failed", "key", c.key, "error", err)
		return nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		logger.Warn("Snapshot cache entry is corrupt", "key", c.key, "error", err)
		return nil
	}
	return &snapshot
}

// Generation reads the shared generation. A missing key is generation 0.
func (c *RedisSnapshotCache) Generation(ctx context.Context) uint64 {
	gen, err := c.client.Get(ctx, c.genKey).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("Snapshot cache generation read failed", "key", c.genKey, "error", err)
	}
	return gen
}

func (c *RedisSnapshotCache) Set(ctx context.Context, gen uint64, snapshot *Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Warn("Snapshot cache encode failed", "error", err)
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, c.genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleSnapshot
		}

		// A zero TTL stores the key without expiry
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, data, c.config.TTL)
			return nil
		})
		return err
	}, c.genKey)

	switch {
	case err == nil, errors.Is(err, errStaleSnapshot), errors.Is(err, redis.TxFailedErr):
		// stored, or superseded by an invalidation
	default:
		logger.Warn("Snapshot cache write failed", "key", c.key, "error", err)
	}
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		logger.Warn("Snapshot cache invalidate failed", "key", c.key, "error", err)
	}
}

func (c *RedisSnapshotCache) IsValid(ctx context.Context) bool {
	n, err := c.client.Exists(ctx, c.key).Result()
	return err == nil && n > 0
}
