package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
	"github.com/anatolykoptev/go_transcript/internal/paginate"
	"github.com/anatolykoptev/go_transcript/internal/reference"
	"github.com/anatolykoptev/go_transcript/internal/transcript"
	"github.com/anatolykoptev/go_transcript/internal/transcriptserver"
)

// loadConfig reads engine.Config from the environment over the defaults.
func loadConfig() (engine.Config, error) {
	cfg := engine.Defaults()
	if err := env.Parse(&cfg); err != nil {
		return engine.Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.PublicBaseURLs = nonEmpty(cfg.PublicBaseURLs)
	cfg.AllowedHosts = nonEmpty(cfg.AllowedHosts)
	return cfg, nil
}

// nonEmpty trims list entries and drops blank ones.
func nonEmpty(list []string) []string {
	for i, v := range list {
		list[i] = strings.TrimSpace(v)
	}
	return slices.DeleteFunc(list, func(s string) bool { return s == "" })
}

// logConfig controls the process logger.
type logConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"text"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// setupLogging installs the default slog logger. LOG_FORMAT=json switches
// from text; LOG_FILE adds a rotated file copy.
func setupLogging() func() {
	lc, err := env.ParseAs[logConfig]()
	if err != nil {
		// Keep going with whatever parsed; the logger is needed to report it.
		defer slog.Warn("logging: bad environment", slog.Any("error", err))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if lc.File != "" {
		lj := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, lj)
		closeFn = func() { _ = lj.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(h))
	return closeFn
}

// app holds the process-wide collaborators shared by every session.
type app struct {
	cfg        engine.Config
	cache      *engine.Cache
	failures   *engine.FailureLog
	normalizer *reference.Normalizer
	service    *transcript.Service
}

func newApp(ctx context.Context, cfg engine.Config) *app {
	a := &app{
		cfg:        cfg,
		cache:      engine.NewCache(openCacheBackend(ctx, cfg), cfg.CacheMaxEntries, cfg.CacheCleanupInterval),
		failures:   engine.NewFailureLog(cfg.FailureLogSize),
		normalizer: reference.NewNormalizer(cfg.AllowedHosts),
	}

	ext := newExtractor(cfg)
	stt := sources.NewSTTClient(sources.STTConfig{
		URL:     cfg.STTURL,
		APIKey:  cfg.STTAPIKey,
		Timeout: cfg.STTTimeout,
		Retry:   engine.STTRetryConfig,
	})
	a.service = transcript.NewService(ext, stt, a.cache, a.failures, cfg.DefaultLang, transcript.ServiceConfig{
		MetadataTTL:  cfg.CacheMetadataTTL,
		SubtitlesTTL: cfg.CacheSubtitlesTTL,
	})
	return a
}

// newExtractor builds the configured subtitle backend. Unknown names fall
// back to yt-dlp.
func newExtractor(cfg engine.Config) transcript.Extractor {
	switch strings.ToLower(cfg.Extractor) {
	case "innertube":
		return sources.NewInnertube(sources.InnertubeConfig{
			Timeout: cfg.ExtractTimeout,
			RPS:     cfg.ExtractRPS,
			Burst:   cfg.ExtractBurst,
		})
	case "", "ytdlp", "yt-dlp":
	default:
		slog.Warn("extractor: unknown backend, using yt-dlp", slog.String("extractor", cfg.Extractor))
	}
	return sources.NewYtDlp(engine.NewExecRunner(), sources.YtDlpConfig{
		Path:    cfg.YtDlpPath,
		Timeout: cfg.ExtractTimeout,
		RPS:     cfg.ExtractRPS,
		Burst:   cfg.ExtractBurst,
	})
}

func (a *app) deps() transcriptserver.Deps {
	return transcriptserver.Deps{
		Normalizer: a.normalizer,
		Service:    a.service,
		Bounds: paginate.Bounds{
			Min:     a.cfg.PageMinChars,
			Max:     a.cfg.PageMaxChars,
			Default: a.cfg.PageDefaultChars,
		},
	}
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		slog.Warn("cache: close failed", slog.Any("error", err))
	}
}

// openCacheBackend picks Redis, then SQLite. Nil means L1 only.
func openCacheBackend(ctx context.Context, cfg engine.Config) engine.Backend {
	if cfg.RedisURL != "" {
		b, err := engine.NewRedisBackend(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("cache: redis unavailable, running without L2", slog.Any("error", err))
			return nil
		}
		return b
	}
	if cfg.CacheSQLitePath != "" {
		b, err := engine.NewSQLiteBackend(cfg.CacheSQLitePath)
		if err != nil {
			slog.Warn("cache: sqlite unavailable, running without L2", slog.Any("error", err))
			return nil
		}
		slog.Info("cache: sqlite L2 enabled", slog.String("path", cfg.CacheSQLitePath))
		return b
	}
	return nil
}
