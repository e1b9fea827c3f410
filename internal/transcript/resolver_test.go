package transcript

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/reference"
)

var rick = reference.VideoReference{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ID: "dQw4w9WgXcQ"}

func TestResolveAutoOfficialBeforeAuto(t *testing.T) {
	ext := &fakeExtractor{
		md:       metadataWith([]string{"fr", "de"}, []string{"en"}),
		official: map[string]string{"fr": "bonjour"},
		auto:     map[string]string{"en": "hello"},
	}
	r := NewResolver(ext, nil, "en")

	res, err := r.Resolve(context.Background(), rick, Request{})
	require.NoError(t, err)
	assert.Equal(t, Official, res.Type)
	assert.Equal(t, "fr", res.Language)
	assert.Equal(t, Extracted, res.Origin)
	// official languages are tried in sorted order
	assert.Equal(t, []string{"official:de", "official:fr"}, ext.Calls())
}

func TestResolveAutoOrigFirst(t *testing.T) {
	ext := &fakeExtractor{
		md:   metadataWith(nil, []string{"ru", "en", "en-orig"}),
		auto: map[string]string{"en": "translated", "en-orig": "spoken", "ru": "privet"},
	}
	r := NewResolver(ext, nil, "en")

	res, err := r.Resolve(context.Background(), rick, Request{})
	require.NoError(t, err)
	assert.Equal(t, Auto, res.Type)
	assert.Equal(t, "en-orig", res.Language)
	assert.Equal(t, "spoken", res.Content)
	assert.Equal(t, []string{"auto:en-orig"}, ext.Calls())
}

func TestResolveAutoOrderWhenAllEmpty(t *testing.T) {
	ext := &fakeExtractor{md: metadataWith([]string{"b", "a"}, []string{"ru", "en", "en-orig"})}
	stt := &fakeSTT{enabled: true, text: "synthesized words"}
	r := NewResolver(ext, stt, "en")

	res, err := r.Resolve(context.Background(), rick, Request{})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"official:a", "official:b", "auto:en-orig", "auto:en", "auto:ru"},
		ext.Calls())
	assert.Equal(t, Synthesized, res.Origin)
	assert.Equal(t, Auto, res.Type)
	assert.Equal(t, "", res.Language)
	assert.Equal(t, []string{""}, stt.langs)
}

func TestResolveSTTNotCalledWhenTrackFound(t *testing.T) {
	ext := &fakeExtractor{md: metadataWith(nil, []string{"en"}), auto: map[string]string{"en": "hi"}}
	stt := &fakeSTT{enabled: true, text: "nope"}
	r := NewResolver(ext, stt, "en")

	_, err := r.Resolve(context.Background(), rick, Request{})
	require.NoError(t, err)
	assert.Zero(t, stt.Calls())
}

func TestResolveSTTDisabled(t *testing.T) {
	ext := &fakeExtractor{md: metadataWith(nil, []string{"en"})}
	stt := &fakeSTT{enabled: false, text: "never"}
	failures := engine.NewFailureLog(10)
	r := NewResolver(ext, stt, "en", WithFailureLog(failures))

	_, err := r.Resolve(context.Background(), rick, Request{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, stt.Calls())
	assert.Empty(t, failures.Snapshot(), "failure is logged only after STT was tried")
}

func TestResolveCatalogFailureIsSoftMiss(t *testing.T) {
	ext := &fakeExtractor{mdErr: errors.New("yt-dlp exited 1")}
	stt := &fakeSTT{enabled: true, text: "from audio"}
	r := NewResolver(ext, stt, "en")

	res, err := r.Resolve(context.Background(), rick, Request{})
	require.NoError(t, err)
	assert.Equal(t, Synthesized, res.Origin)
	assert.Empty(t, ext.Calls())
	assert.Equal(t, 1, stt.Calls())
}

func TestResolveExtractionErrorsAreSoftMisses(t *testing.T) {
	ext := &fakeExtractor{
		md:     metadataWith([]string{"en"}, []string{"en"}),
		auto:   map[string]string{"en": "auto text"},
		subErr: map[string]error{"official:en": errors.New("HTTP Error 429")},
	}
	r := NewResolver(ext, nil, "en")

	res, err := r.Resolve(context.Background(), rick, Request{})
	require.NoError(t, err)
	assert.Equal(t, "auto text", res.Content)
}

func TestResolveExplicit(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantCall string
		wantType TrackType
		wantLang string
	}{
		{"defaults", Request{Type: Official}, "official:en", Official, "en"},
		{"lang only defaults to auto", Request{Language: "de"}, "auto:de", Auto, "de"},
		{"both", Request{Type: Official, Language: "ja"}, "official:ja", Official, "ja"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &fakeExtractor{
				official: map[string]string{"en": "x", "ja": "x"},
				auto:     map[string]string{"de": "x"},
			}
			r := NewResolver(ext, &fakeSTT{enabled: true, text: "s"}, "en")

			res, err := r.Resolve(context.Background(), rick, tt.req)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantCall}, ext.Calls())
			assert.Equal(t, tt.wantType, res.Type)
			assert.Equal(t, tt.wantLang, res.Language)
			assert.Zero(t, ext.mdCalls, "explicit mode never reads the catalog")
		})
	}
}

func TestResolveExplicitFallsBackToSTTOnce(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		wantLang string
	}{
		{"with language", Request{Type: Auto, Language: "de"}, "de"},
		{"type only auto-detects", Request{Type: Official}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &fakeExtractor{}
			stt := &fakeSTT{enabled: true, text: "spoken"}
			r := NewResolver(ext, stt, "en")

			res, err := r.Resolve(context.Background(), rick, tt.req)
			require.NoError(t, err)
			assert.Len(t, ext.Calls(), 1)
			assert.Equal(t, []string{tt.wantLang}, stt.langs)
			assert.Equal(t, Synthesized, res.Origin)
			assert.Equal(t, tt.wantLang, res.Language)
		})
	}
}

func TestResolveBothFailRecordsFailure(t *testing.T) {
	ext := &fakeExtractor{}
	stt := &fakeSTT{enabled: true, err: errors.New("stt: http 503")}
	failures := engine.NewFailureLog(10)
	r := NewResolver(ext, stt, "en", WithFailureLog(failures))

	_, err := r.Resolve(context.Background(), rick, Request{Type: Auto, Language: "en"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, stt.Calls())

	snap := failures.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, rick.URL, snap[0].URL)
	assert.Contains(t, snap[0].Error, "503")
}

func TestResolveEmptySTTIsNotFound(t *testing.T) {
	ext := &fakeExtractor{md: metadataWith(nil, nil)}
	stt := &fakeSTT{enabled: true, text: "   "}
	r := NewResolver(ext, stt, "en")

	_, err := r.Resolve(context.Background(), rick, Request{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveValidation(t *testing.T) {
	ext := &fakeExtractor{}
	r := NewResolver(ext, &fakeSTT{enabled: true, text: "x"}, "en")

	for _, req := range []Request{
		{Type: "manual"},
		{Language: "english"},
		{Language: "e"},
		{Language: "en US"},
	} {
		_, err := r.Resolve(context.Background(), rick, req)
		assert.ErrorIs(t, err, ErrInvalidInput, "request %+v", req)
	}
	assert.Empty(t, ext.Calls())
}

func TestValidateLanguageAccepts(t *testing.T) {
	for _, code := range []string{"en", "en-orig", "pt-BR", "zh-Hans", "es_419", "fil"} {
		assert.NoError(t, ValidateLanguage(code), code)
	}
}

func TestAutoOrder(t *testing.T) {
	got := autoOrder([]string{"de", "en", "en-orig", "ru", "ru-orig"})
	assert.Equal(t, []string{"en-orig", "ru-orig", "de", "en", "ru"}, got)
}

func TestCatalogFromMetadata(t *testing.T) {
	md := metadataWith([]string{"ru", "en"}, []string{"fr", "de"})
	md.Subtitles["live_chat"] = nil
	md.AutomaticCaptions["xx-empty"] = nil

	cat := CatalogFromMetadata(md)
	assert.Equal(t, []string{"en", "ru"}, cat.Official)
	assert.Equal(t, []string{"de", "fr"}, cat.Auto)
}
