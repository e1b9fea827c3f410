package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	CacheHits      atomic.Int64
	CacheMisses    atomic.Int64
	CacheErrors    atomic.Int64
	ExtractCalls   atomic.Int64
	ExtractErrors  atomic.Int64
	STTCalls       atomic.Int64
	STTErrors      atomic.Int64
	Resolutions    atomic.Int64
	NotFound       atomic.Int64
	ActiveSessions atomic.Int64
}

// metricKeys fixes the output order of FormatMetrics.
var metricKeys = []string{
	"resolutions", "not_found",
	"extract_calls", "extract_errors",
	"stt_calls", "stt_errors",
	"cache_hits", "cache_misses", "cache_errors",
	"active_sessions",
}

// CacheStats returns L1+L2 hit and miss totals.
func CacheStats() (hits, misses int64) {
	return metrics.CacheHits.Load(), metrics.CacheMisses.Load()
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"resolutions":     metrics.Resolutions.Load(),
		"not_found":       metrics.NotFound.Load(),
		"extract_calls":   metrics.ExtractCalls.Load(),
		"extract_errors":  metrics.ExtractErrors.Load(),
		"stt_calls":       metrics.STTCalls.Load(),
		"stt_errors":      metrics.STTErrors.Load(),
		"cache_hits":      hits,
		"cache_misses":    misses,
		"cache_errors":    metrics.CacheErrors.Load(),
		"active_sessions": metrics.ActiveSessions.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sources/ and transcript/ sub-packages.
func IncrExtractCalls()  { metrics.ExtractCalls.Add(1) }
func IncrExtractErrors() { metrics.ExtractErrors.Add(1) }
func IncrSTTCalls()      { metrics.STTCalls.Add(1) }
func IncrSTTErrors()     { metrics.STTErrors.Add(1) }
func IncrResolutions()   { metrics.Resolutions.Add(1) }
func IncrNotFound()      { metrics.NotFound.Add(1) }

// SetActiveSessions publishes the live session count.
func SetActiveSessions(n int) { metrics.ActiveSessions.Store(int64(n)) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
