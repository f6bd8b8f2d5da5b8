package cache

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryTTL = 7 * 24 * time.Hour

type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool { return now.After(m.expireAt) }

// MemoryCache is an in-process Service. When full, the least recently
// accessed key is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	ticker  *time.Ticker
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		stop:    make(chan struct{}),
	}
	go mc.cleanupExpired()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.setLocked(key, data, expiration, time.Now())
	return nil
}

func (mc *MemoryCache) setLocked(key string, data []byte, expiration time.Duration, now time.Time) {
	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), access: now}
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	now := time.Now()
	item, ok := mc.data[key]
	if !ok || item.expired(now) {
		if ok {
			delete(mc.data, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.access = now
	data := item.data
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) MSet(_ context.Context, values map[string]interface{}, expiration time.Duration) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := encode(v)
		if err != nil {
			return err
		}
		encoded[k] = data
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := time.Now()
	for k, data := range encoded {
		mc.setLocked(k, data, expiration, now)
	}
	return nil
}

func (mc *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if item, ok := mc.data[key]; ok && !item.expired(now) {
			out[key] = string(item.data)
		}
	}
	return out, nil
}

func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) evictLRU() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldestKey, oldest = key, item.access
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.stop:
			return
		case now := <-mc.ticker.C:
			mc.mu.Lock()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.stop)
	})
	return nil
}
