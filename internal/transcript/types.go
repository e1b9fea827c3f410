// Package transcript resolves a video reference to transcript text by
// walking subtitle tracks and falling back to speech-to-text.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
)

var (
	// ErrNotFound means every source was tried and none produced content.
	ErrNotFound = errors.New("transcript not found")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// TrackType distinguishes uploaded subtitles from automatic captions.
type TrackType string

const (
	Official TrackType = "official"
	Auto     TrackType = "auto"
)

// Origin records whether content came from a track or from speech-to-text.
type Origin string

const (
	Extracted   Origin = "extracted"
	Synthesized Origin = "synthesized"
)

// TrackCatalog lists available subtitle languages, each sorted and unique.
type TrackCatalog struct {
	Official []string `json:"official"`
	Auto     []string `json:"auto"`
}

// Result is a resolved transcript. Language is "" only for synthesized
// content when no language was requested.
type Result struct {
	VideoID  string    `json:"video_id"`
	Type     TrackType `json:"type"`
	Language string    `json:"lang"`
	Content  string    `json:"content"`
	Origin   Origin    `json:"origin"`
}

// VideoInfo is a metadata summary derived from the info document.
type VideoInfo struct {
	VideoID     string  `json:"video_id"`
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Channel     string  `json:"channel,omitempty"`
	Duration    float64 `json:"duration_seconds,omitempty"`
	ViewCount   int64   `json:"view_count,omitempty"`
	LikeCount   int64   `json:"like_count,omitempty"`
	UploadDate  string  `json:"upload_date,omitempty"`
	Description string  `json:"description,omitempty"`
	HasOfficial bool    `json:"has_official_subtitles"`
	HasAuto     bool    `json:"has_auto_captions"`
}

// Request selects a resolution mode. Leaving both fields empty runs
// auto-discovery; setting either runs a single explicit attempt.
type Request struct {
	Type     TrackType
	Language string
}

// Explicit reports whether r pins a type or language.
func (r Request) Explicit() bool {
	return r.Type != "" || r.Language != ""
}

// String describes a request for logs.
func (r Request) String() string {
	if !r.Explicit() {
		return "auto-discovery"
	}
	return fmt.Sprintf("%s/%s", r.Type, r.Language)
}

var langRe = regexp.MustCompile(`^[A-Za-z]{2,3}([-_][A-Za-z0-9]{1,8})*$`)

// ValidateLanguage checks that code looks like a BCP 47 style tag with a known base language.
func ValidateLanguage(code string) error {
	if !langRe.MatchString(code) {
		return fmt.Errorf("%w: language %q", ErrInvalidInput, code)
	}
	base := strings.FieldsFunc(code, func(r rune) bool { return r == '-' || r == '_' })[0]
	if _, err := language.ParseBase(base); err != nil {
		return fmt.Errorf("%w: language %q: %v", ErrInvalidInput, code, err)
	}
	return nil
}

// Validate checks the request before any external call is made.
func (r Request) Validate() error {
	switch r.Type {
	case "", Official, Auto:
	default:
		return fmt.Errorf("%w: type %q (want official or auto)", ErrInvalidInput, r.Type)
	}
	if r.Language != "" {
		return ValidateLanguage(r.Language)
	}
	return nil
}

// Extractor is the subtitle/metadata extraction process.
type Extractor interface {
	Metadata(ctx context.Context, url string) (*sources.VideoMetadata, error)
	Subtitles(ctx context.Context, url string, auto bool, lang string) (string, error)
	AudioURL(ctx context.Context, url string) (string, error)
}

// Transcriber is the speech-to-text fallback.
type Transcriber interface {
	Enabled() bool
	Transcribe(ctx context.Context, audioURL, lang string) (string, error)
}
