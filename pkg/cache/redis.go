// Package cache is the redis-backed read cache. Every helper degrades to a
// miss / no-op when redis is unavailable, so callers never branch on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/metrics"
)

var RDB *redis.Client

var group singleflight.Group

// Connect initialises the Redis client and verifies the connection with a ping.
// Returns an error so the caller can react (log warning, fall back, or abort).
func Connect(ctx context.Context) error {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
		DB:       0,
	})

	if err := RDB.Ping(ctx).Err(); err != nil {
		RDB = nil // mark as unavailable so Get/Set/Del no-op safely
		return fmt.Errorf("cache: redis ping: %w", err)
	}
	return nil
}

// Use swaps in an existing client (tests, or sharing with the queue driver).
func Use(c *redis.Client) { RDB = c }

// Get retrieves a cached value by key and unmarshals into dest.
// Returns true on a cache hit, false on miss or error.
func Get(ctx context.Context, key string, dest interface{}) bool {
	if RDB == nil {
		return false
	}

	val, err := RDB.Get(ctx, key).Bytes()
	if err != nil {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return false
	}

	if err := json.Unmarshal(val, dest); err != nil {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return false
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return true
}

// Set stores value in Redis under key for the given TTL.
func Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if RDB == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return RDB.Set(ctx, key, data, ttl).Err()
}

// Del removes one or more keys from Redis.
func Del(ctx context.Context, keys ...string) error {
	if RDB == nil || len(keys) == 0 {
		return nil
	}
	return RDB.Del(ctx, keys...).Err()
}

// Forget is an alias for Del (Laravel-style).
func Forget(ctx context.Context, key string) error {
	return Del(ctx, key)
}

// Remember returns the cached value under key, or calls load, caches its
// result for ttl and decodes it into dest. Concurrent misses for the same
// key share a single load call.
func Remember(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func() (interface{}, error)) error {
	if Get(ctx, key, dest) {
		return nil
	}

	v, err, _ := group.Do(key, func() (interface{}, error) {
		fresh, err := load()
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(fresh)
		if err != nil {
			return nil, fmt.Errorf("cache: encode %s: %w", key, err)
		}
		if RDB != nil {
			_ = RDB.Set(ctx, key, data, ttl).Err()
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	return json.Unmarshal(v.([]byte), dest)
}
