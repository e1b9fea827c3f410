package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// subFormatPref is the yt-dlp format selector for subtitle downloads.
const subFormatPref = "srt/vtt/best"

// ErrNoAudio is returned when yt-dlp prints no audio stream locator.
var ErrNoAudio = errors.New("no audio stream")

// SubtitleFormat is one downloadable rendition of a subtitle track.
type SubtitleFormat struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// VideoMetadata is the subset of the yt-dlp info document the service reads.
type VideoMetadata struct {
	ID                string                      `json:"id"`
	Title             string                      `json:"title"`
	Channel           string                      `json:"channel"`
	Uploader          string                      `json:"uploader"`
	Duration          float64                     `json:"duration"`
	ViewCount         int64                       `json:"view_count"`
	LikeCount         int64                       `json:"like_count"`
	UploadDate        string                      `json:"upload_date"`
	Description       string                      `json:"description"`
	WebpageURL        string                      `json:"webpage_url"`
	Subtitles         map[string][]SubtitleFormat `json:"subtitles"`
	AutomaticCaptions map[string][]SubtitleFormat `json:"automatic_captions"`
}

// YtDlpConfig configures the yt-dlp extractor.
type YtDlpConfig struct {
	Path    string
	Timeout time.Duration
	RPS     float64
	Burst   int
	// Retry governs reruns of throttled calls; zero uses engine.ExtractRetryConfig.
	Retry engine.RetryConfig
	// TempDir is the parent for per-call download directories; "" uses os.TempDir.
	TempDir string
}

// YtDlp extracts metadata, subtitle tracks and audio locators by running yt-dlp.
// Calls are rate limited and bounded by a per-call timeout.
type YtDlp struct {
	runner  engine.CmdRunner
	cfg     YtDlpConfig
	limiter *rate.Limiter
}

// NewYtDlp creates an extractor running cfg.Path through runner.
func NewYtDlp(runner engine.CmdRunner, cfg YtDlpConfig) *YtDlp {
	if cfg.Path == "" {
		cfg.Path = "yt-dlp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry == (engine.RetryConfig{}) {
		cfg.Retry = engine.ExtractRetryConfig
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &YtDlp{runner: runner, cfg: cfg, limiter: rate.NewLimiter(limit, cfg.Burst)}
}

// slowCallThreshold is the duration after which a yt-dlp call is logged as slow.
const slowCallThreshold = 20 * time.Second

// run executes yt-dlp, waiting for the limiter and applying the per-call
// timeout on every attempt. Throttled runs are retried with backoff.
func (y *YtDlp) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	out, err := engine.RetryDo(ctx, y.cfg.Retry, func() ([]byte, error) {
		return y.runOnce(ctx, op, args)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("ytdlp: call done", slog.String("op", op), slog.Int("bytes", len(out)))
	return out, nil
}

func (y *YtDlp) runOnce(ctx context.Context, op string, args []string) ([]byte, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ytdlp: rate limit: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	engine.IncrExtractCalls()
	var out []byte
	err := engine.TrackOperation(ctx, "ytdlp "+op, slowCallThreshold, func(ctx context.Context) error {
		var err error
		out, err = y.runner.Run(ctx, y.cfg.Path, args...)
		return err
	})
	if err != nil {
		engine.IncrExtractErrors()
		return nil, err
	}
	return out, nil
}

// Metadata fetches the info document for url without downloading media.
func (y *YtDlp) Metadata(ctx context.Context, url string) (*VideoMetadata, error) {
	out, err := y.run(ctx, "metadata", "--dump-single-json", "--skip-download", "--no-warnings", "--no-playlist", url)
	if err != nil {
		return nil, fmt.Errorf("ytdlp metadata: %w", err)
	}
	var md VideoMetadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, fmt.Errorf("ytdlp metadata: decode: %w", err)
	}
	return &md, nil
}

// Subtitles downloads one subtitle track and returns its raw content.
// auto selects automatic captions instead of uploaded ones.
// A missing track yields "" with a nil error.
func (y *YtDlp) Subtitles(ctx context.Context, url string, auto bool, lang string) (string, error) {
	dir, err := os.MkdirTemp(y.cfg.TempDir, "ytsub-")
	if err != nil {
		return "", fmt.Errorf("ytdlp subtitles: %w", err)
	}
	defer os.RemoveAll(dir)

	write := "--write-subs"
	if auto {
		write = "--write-auto-subs"
	}
	_, err = y.run(ctx, "subtitles", "--skip-download", write,
		"--sub-langs", lang,
		"--sub-format", subFormatPref,
		"--no-warnings", "--no-playlist",
		"-o", filepath.Join(dir, "sub.%(ext)s"),
		url)
	if err != nil {
		return "", fmt.Errorf("ytdlp subtitles: %w", err)
	}

	path, ok := pickSubtitleFile(dir)
	if !ok {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ytdlp subtitles: read: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// AudioURL returns a direct locator for the best audio-only stream.
func (y *YtDlp) AudioURL(ctx context.Context, url string) (string, error) {
	out, err := y.run(ctx, "audio", "-f", "bestaudio", "-g", "--no-warnings", "--no-playlist", url)
	if err != nil {
		return "", fmt.Errorf("ytdlp audio: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", ErrNoAudio
}

// pickSubtitleFile chooses the downloaded track, preferring srt over vtt.
func pickSubtitleFile(dir string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(dir, "sub.*"))
	if len(matches) == 0 {
		return "", false
	}
	rank := func(p string) int {
		switch filepath.Ext(p) {
		case ".srt":
			return 0
		case ".vtt":
			return 1
		}
		return 2
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return rank(matches[i]) < rank(matches[j])
	})
	return matches[0], true
}
