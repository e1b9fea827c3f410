package engine

import (
	"time"
)

// Config holds all service configuration. Fields are filled from the
// environment variable named in their env tag, over Defaults().
type Config struct {
	Port string `env:"MCP_PORT"`

	// Endpoint advertisement for the event-stream transport.
	PublicBaseURLs      []string `env:"PUBLIC_BASE_URLS"`
	GatewayHeader       string   `env:"GATEWAY_HEADER"`
	GatewayOverrideURL  string   `env:"GATEWAY_OVERRIDE_URL"`
	GatewayRegistryHost string   `env:"GATEWAY_REGISTRY_HOST"`

	SessionTTL           time.Duration `env:"SESSION_TTL"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL"`

	AllowedHosts []string `env:"ALLOWED_HOSTS"`
	DefaultLang  string   `env:"DEFAULT_LANG"`

	// Extractor selects the subtitle backend: "ytdlp" or "innertube".
	Extractor string `env:"EXTRACTOR"`

	// yt-dlp extraction.
	YtDlpPath      string        `env:"YTDLP_PATH"`
	ExtractTimeout time.Duration `env:"EXTRACT_TIMEOUT"`
	ExtractRPS     float64       `env:"EXTRACT_RPS"`
	ExtractBurst   int           `env:"EXTRACT_BURST"`

	// Speech-to-text fallback; disabled when STTURL is empty.
	STTURL     string        `env:"STT_URL"`
	STTAPIKey  string        `env:"STT_API_KEY"`
	STTTimeout time.Duration `env:"STT_TIMEOUT"`

	PageMinChars     int `env:"PAGE_MIN_CHARS"`
	PageMaxChars     int `env:"PAGE_MAX_CHARS"`
	PageDefaultChars int `env:"PAGE_DEFAULT_CHARS"`

	RedisURL             string        `env:"REDIS_URL"`
	CacheSQLitePath      string        `env:"CACHE_SQLITE_PATH"`
	CacheMetadataTTL     time.Duration `env:"CACHE_METADATA_TTL"`
	CacheSubtitlesTTL    time.Duration `env:"CACHE_SUBTITLES_TTL"`
	CacheMaxEntries      int           `env:"CACHE_MAX_ENTRIES"`
	CacheCleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL"`

	FailureLogSize int `env:"FAILURE_LOG_SIZE"`
}

// STTEnabled reports whether the speech-to-text fallback is configured.
func (c Config) STTEnabled() bool {
	return c.STTURL != ""
}

// Defaults returns a Config with the documented default values.
func Defaults() Config {
	return Config{
		Port:                 "8892",
		GatewayHeader:        "X-Mcp-Gateway",
		SessionTTL:           time.Hour,
		SessionSweepInterval: time.Minute,
		DefaultLang:          "en",
		Extractor:            "ytdlp",
		YtDlpPath:            "yt-dlp",
		ExtractTimeout:       60 * time.Second,
		ExtractRPS:           1,
		ExtractBurst:         2,
		STTTimeout:           5 * time.Minute,
		PageMinChars:         100,
		PageMaxChars:         100_000,
		PageDefaultChars:     10_000,
		CacheMetadataTTL:     time.Hour,
		CacheSubtitlesTTL:    24 * time.Hour,
		CacheMaxEntries:      1000,
		CacheCleanupInterval: 5 * time.Minute,
		FailureLogSize:       100,
	}
}
