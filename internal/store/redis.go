package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached snapshot lives without a refresh.
const DefaultCacheTTL = 40 * time.Minute

const sessionKeyPrefix = "nodeflow:session:"

// RedisCache is a write-through snapshot cache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache parses redisURL, connects, and pings the server.
// A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, storeError("parse redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storeError("connect redis", err)
	}
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// SessionKey returns the Redis key holding a session snapshot.
func SessionKey(id string) string { return sessionKeyPrefix + id }

// Put stores rec and resets its TTL.
func (c *RedisCache) Put(ctx context.Context, rec *SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return storeError("marshal cached session", err)
	}
	if err := c.client.Set(ctx, SessionKey(rec.ID), data, c.ttl).Err(); err != nil {
		return storeError("cache session", err)
	}
	return nil
}

// Get returns the cached snapshot, or (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, id string) (*SessionRecord, error) {
	data, err := c.client.Get(ctx, SessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read cached session", err)
	}
	rec := &SessionRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, storeError("unmarshal cached session", err)
	}
	return rec, nil
}

// Delete evicts a session. Evicting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, SessionKey(id)).Err(); err != nil {
		return storeError("evict cached session", err)
	}
	return nil
}

// TTL reports the remaining lifetime of a cached session.
func (c *RedisCache) TTL(ctx context.Context, id string) (time.Duration, error) {
	d, err := c.client.TTL(ctx, SessionKey(id)).Result()
	if err != nil {
		return 0, storeError("read cache ttl", err)
	}
	return d, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }
