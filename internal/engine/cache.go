package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by a Backend when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// l2RefillTTL bounds how long an L2 hit stays in L1.
const l2RefillTTL = 5 * time.Minute

// Backend is the shared key-value store behind the in-memory tier.
// Implementations must tolerate concurrent Get/Set on the same key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Close() error
}

// Cache provides 2-tier caching: L1 in-memory + optional L2 Backend.
// L1 is fast but lost on restart. L2 survives restarts and is shared
// between replicas. Any L2 error degrades to a miss.
type Cache struct {
	l1              sync.Map // key → *cacheEntry
	l2              Backend  // nil if no backend configured
	maxEntries      int
	cleanupInterval time.Duration
	done            chan struct{}
	closeOnce       sync.Once
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewCache sets up the 2-tier cache and starts the L1 cleanup loop.
// l2 may be nil to run memory-only.
func NewCache(l2 Backend, maxEntries int, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		l2:              l2,
		maxEntries:      maxEntries,
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
	}
	slog.Info("cache: initialized", slog.Bool("l2", l2 != nil), slog.Int("max_entries", maxEntries))
	go c.cleanupLoop()
	return c
}

// Get tries L1, then L2. On L2 hit, populates L1.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			slog.Debug("cache: L1 hit", slog.String("key", key))
			metrics.CacheHits.Add(1)
			return entry.data, true
		}
		c.l1.Delete(key) // expired
	}

	if c.l2 != nil {
		data, err := c.l2.Get(ctx, key)
		switch {
		case err == nil:
			slog.Debug("cache: L2 hit", slog.String("key", key))
			metrics.CacheHits.Add(1)
			c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(l2RefillTTL)})
			return data, true
		case !errors.Is(err, ErrCacheMiss):
			metrics.CacheErrors.Add(1)
			slog.Debug("cache: L2 get failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	metrics.CacheMisses.Add(1)
	return nil, false
}

// Set stores data in both tiers for ttl. Last write wins.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.evictIfNeeded()

	c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(ttl)})

	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, data, ttl); err != nil {
			metrics.CacheErrors.Add(1)
			slog.Debug("cache: L2 set failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// Close stops the cleanup loop and closes the backend.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.l2 != nil {
			err = c.l2.Close()
		}
	})
	return err
}

// evictIfNeeded removes entries when L1 exceeds maxEntries.
// Removes expired entries first, then the entries closest to expiry.
func (c *Cache) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}

	// Phase 1: remove expired
	now := time.Now()
	c.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
			c.l1.Delete(key)
			count--
		}
		return count >= c.maxEntries
	})
	if count < c.maxEntries {
		return
	}

	// Phase 2: remove soonest-expiring entries until under limit
	for count >= c.maxEntries {
		var victim any
		var at time.Time
		c.l1.Range(func(key, val any) bool {
			if entry, ok := val.(*cacheEntry); ok {
				if victim == nil || entry.expiresAt.Before(at) {
					victim = key
					at = entry.expiresAt
				}
			}
			return true
		})
		if victim == nil {
			break
		}
		c.l1.Delete(victim)
		count--
	}
}

// cleanupLoop periodically removes expired L1 entries.
func (c *Cache) cleanupLoop() {
	interval := c.cleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.l1.Range(func(key, val any) bool {
				if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
					c.l1.Delete(key)
				}
				return true
			})
			c.purgeL2()
		}
	}
}

// purgeL2 drops expired rows from backends that do not expire keys themselves.
func (c *Cache) purgeL2() {
	p, ok := c.l2.(interface {
		Purge(context.Context) (int64, error)
	})
	if !ok {
		return
	}
	n, err := p.Purge(context.Background())
	if err != nil {
		slog.Debug("cache: L2 purge failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		slog.Debug("cache: L2 purged", slog.Int64("rows", n))
	}
}

// RedisBackend stores entries in Redis.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects to redisURL and verifies it with a PING.
func NewRedisBackend(ctx context.Context, redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis unreachable: %w", err)
	}
	slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
	return &RedisBackend{rdb: rdb}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, data, ttl).Err()
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
