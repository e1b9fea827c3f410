package transcript

import (
	"context"
	"fmt"
	"sync"

	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
)

// fakeExtractor serves tracks from maps keyed by language and records calls.
type fakeExtractor struct {
	mu       sync.Mutex
	md       *sources.VideoMetadata
	mdErr    error
	official map[string]string
	auto     map[string]string
	subErr   map[string]error
	calls    []string
	mdCalls  int
	audioURL string
	audioErr error
	gate     chan struct{} // when set, Subtitles blocks until closed
}

func (f *fakeExtractor) Metadata(_ context.Context, _ string) (*sources.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mdCalls++
	if f.mdErr != nil {
		return nil, f.mdErr
	}
	return f.md, nil
}

func (f *fakeExtractor) Subtitles(ctx context.Context, _ string, auto bool, lang string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kind := "official"
	src := f.official
	if auto {
		kind = "auto"
		src = f.auto
	}
	call := kind + ":" + lang
	f.calls = append(f.calls, call)
	if err := f.subErr[call]; err != nil {
		return "", err
	}
	return src[lang], nil
}

func (f *fakeExtractor) AudioURL(_ context.Context, url string) (string, error) {
	if f.audioErr != nil {
		return "", f.audioErr
	}
	if f.audioURL != "" {
		return f.audioURL, nil
	}
	return "https://audio/" + url, nil
}

func (f *fakeExtractor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeSTT returns text for any audio and records the language hints it was given.
type fakeSTT struct {
	mu      sync.Mutex
	enabled bool
	text    string
	err     error
	langs   []string
}

func (s *fakeSTT) Enabled() bool { return s.enabled }

func (s *fakeSTT) Transcribe(_ context.Context, audioURL, lang string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.langs = append(s.langs, lang)
	if s.err != nil {
		return "", s.err
	}
	if audioURL == "" {
		return "", fmt.Errorf("empty audio url")
	}
	return s.text, nil
}

func (s *fakeSTT) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.langs)
}

func metadataWith(official, auto []string) *sources.VideoMetadata {
	md := &sources.VideoMetadata{
		ID:                "dQw4w9WgXcQ",
		Title:             "Never Gonna Give You Up",
		Subtitles:         map[string][]sources.SubtitleFormat{},
		AutomaticCaptions: map[string][]sources.SubtitleFormat{},
	}
	for _, l := range official {
		md.Subtitles[l] = []sources.SubtitleFormat{{Ext: "vtt"}}
	}
	for _, l := range auto {
		md.AutomaticCaptions[l] = []sources.SubtitleFormat{{Ext: "vtt"}}
	}
	return md
}
