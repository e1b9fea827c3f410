// Package toolutil provides shared helpers for go_transcript MCP tools
// and the services behind them.
package toolutil

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// CacheLoadJSON tries to load a cached value of type T from c.
// Returns the decoded value and true on hit; zero value and false on miss,
// nil cache or decode error.
func CacheLoadJSON[T any](ctx context.Context, c *engine.Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	data, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Warn("toolutil: corrupt cache entry", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	return out, true
}

// CacheStoreJSON marshals v and stores it in c for ttl.
func CacheStoreJSON[T any](ctx context.Context, c *engine.Cache, key string, v T, ttl time.Duration) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("toolutil: encode cache entry", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.Set(ctx, key, data, ttl)
}
