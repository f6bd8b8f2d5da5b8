package cache

import (
	"context"
	"time"
)

// LayeredCache reads through an in-process L1 in front of Redis. Writes go
// to Redis first.
type LayeredCache struct {
	mem   *MemoryCache
	redis *RedisCache
	l1TTL time.Duration
}

func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{MemoryMaxSize: 1000, MemoryTTL: time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		mem:   NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		redis: redisCache,
		l1TTL: cfg.MemoryTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.mem.Set(ctx, key, value, lc.ttl(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw string
	if err := lc.redis.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, raw, lc.l1TTL)
	return decode([]byte(raw), dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	if err := lc.redis.MSet(ctx, values, expiration); err != nil {
		return err
	}
	return lc.mem.MSet(ctx, values, lc.ttl(expiration))
}

func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return lc.redis.MGet(ctx, keys...)
}

// ttl keeps L1 entries no longer than the Redis entry they shadow.
func (lc *LayeredCache) ttl(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.redis.Close()
}
