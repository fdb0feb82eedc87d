package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements the Cache interface over a shared Redis client.
// Entries are stored as JSON with the entry's own TTL mirrored onto the key.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates the distributed cache tier on an existing client
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultOptions().KeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

func (rc *RedisCache) redisKey(key string) string {
	return rc.prefix + ":" + key
}

// Get fetches and deserializes the entry for key; nil on a miss
func (rc *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := rc.client.Get(ctx, rc.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Set serializes and stores the entry with its remaining TTL
func (rc *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Duration(entry.TTLSeconds) * time.Second
	}
	if err := rc.client.Set(ctx, rc.redisKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Clear drops all entries under this cache's prefix
func (rc *RedisCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return nil
}

// Stats counts keys under this cache's prefix
func (rc *RedisCache) Stats(ctx context.Context) (Stats, error) {
	var keys int64
	iter := rc.client.Scan(ctx, 0, rc.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys++
	}
	if err := iter.Err(); err != nil {
		return Stats{DistributedState: "unavailable"}, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return Stats{
		DistributedKeys:  keys,
		DistributedState: "connected",
	}, nil
}

// Ping verifies connectivity to the distributed store
func (rc *RedisCache) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return rc.client.Ping(pingCtx).Err()
}
