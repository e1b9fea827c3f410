package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// flakyBackend records calls and can be switched into a failing state.
type flakyBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool
	sets int
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{data: make(map[string][]byte)}
}

func (b *flakyBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return nil, errors.New("connection refused")
	}
	v, ok := b.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (b *flakyBackend) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets++
	if b.fail {
		return errors.New("connection refused")
	}
	b.data[key] = data
	return nil
}

func (b *flakyBackend) Close() error { return nil }

func TestCacheGetSet(t *testing.T) {
	c := NewCache(nil, 100, time.Minute)
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "sub:x:auto-discovery"); ok {
		t.Error("expected cache miss on empty cache")
	}

	c.Set(ctx, "sub:x:auto-discovery", []byte("hello"), time.Minute)

	got, ok := c.Get(ctx, "sub:x:auto-discovery")
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestCacheExpiration(t *testing.T) {
	c := NewCache(nil, 100, time.Minute)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "avail:x", []byte("temp"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, "avail:x"); ok {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(nil, 3, time.Minute)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count > 3 {
		t.Errorf("expected at most 3 entries after eviction, got %d", count)
	}
}

func TestCacheL2Refill(t *testing.T) {
	l2 := newFlakyBackend()
	l2.data["avail:y"] = []byte("from-l2")
	c := NewCache(l2, 100, time.Minute)
	defer c.Close()
	ctx := context.Background()

	got, ok := c.Get(ctx, "avail:y")
	if !ok || string(got) != "from-l2" {
		t.Fatalf("Get = %q, %v; want L2 hit", got, ok)
	}
	delete(l2.data, "avail:y")
	if _, ok := c.Get(ctx, "avail:y"); !ok {
		t.Error("expected L1 to be populated after L2 hit")
	}
}

func TestCacheBackendOutageDegradesToMiss(t *testing.T) {
	l2 := newFlakyBackend()
	l2.fail = true
	c := NewCache(l2, 100, time.Minute)
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "sub:z:auto:en"); ok {
		t.Error("expected miss while backend is down")
	}
	// Set must not panic or block; L1 still serves the value.
	c.Set(ctx, "sub:z:auto:en", []byte("v"), time.Minute)
	if _, ok := c.Get(ctx, "sub:z:auto:en"); !ok {
		t.Error("expected L1 hit despite backend outage")
	}
	if l2.sets != 1 {
		t.Errorf("backend Set calls = %d, want 1", l2.sets)
	}
}

func TestCacheStats(t *testing.T) {
	c := NewCache(nil, 100, time.Minute)
	defer c.Close()
	metrics.CacheHits.Store(0)
	metrics.CacheMisses.Store(0)
	ctx := context.Background()

	c.Get(ctx, "stats")
	c.Set(ctx, "stats", []byte("x"), time.Minute)
	c.Get(ctx, "stats")

	hits, misses := CacheStats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "cache.db")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(missing) error = %v, want ErrCacheMiss", err)
	}

	if err := b.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := b.Get(ctx, "k")
	if err != nil || string(got) != "v2" {
		t.Errorf("Get(k) = %q, %v; want v2", got, err)
	}

	if err := b.Set(ctx, "old", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := b.Get(ctx, "old"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired Get error = %v, want ErrCacheMiss", err)
	}
	n, err := b.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("Purge removed %d rows, want 1", n)
	}
}
