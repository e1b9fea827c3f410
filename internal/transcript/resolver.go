package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/reference"
)

// CatalogFunc returns the track catalog for a reference.
type CatalogFunc func(ctx context.Context, ref reference.VideoReference) (TrackCatalog, error)

// Resolver runs the resolution cascade. It holds no per-request state.
type Resolver struct {
	ext         Extractor
	stt         Transcriber
	failures    *engine.FailureLog
	defaultLang string
	catalog     CatalogFunc
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithCatalog replaces the catalog source used by auto-discovery.
func WithCatalog(fn CatalogFunc) ResolverOption {
	return func(r *Resolver) { r.catalog = fn }
}

// WithFailureLog records exhausted resolutions into l.
func WithFailureLog(l *engine.FailureLog) ResolverOption {
	return func(r *Resolver) { r.failures = l }
}

// NewResolver creates a resolver. stt may be nil to disable the fallback.
func NewResolver(ext Extractor, stt Transcriber, defaultLang string, opts ...ResolverOption) *Resolver {
	if defaultLang == "" {
		defaultLang = "en"
	}
	r := &Resolver{ext: ext, stt: stt, defaultLang: defaultLang}
	r.catalog = r.FetchCatalog
	for _, o := range opts {
		o(r)
	}
	return r
}

// FetchCatalog reads the catalog straight from the extractor.
func (r *Resolver) FetchCatalog(ctx context.Context, ref reference.VideoReference) (TrackCatalog, error) {
	md, err := r.ext.Metadata(ctx, ref.URL)
	if err != nil {
		return TrackCatalog{}, err
	}
	return CatalogFromMetadata(md), nil
}

func (r *Resolver) sttEnabled() bool {
	return r.stt != nil && r.stt.Enabled()
}

// Resolve returns the first non-empty transcript for ref according to req.
func (r *Resolver) Resolve(ctx context.Context, ref reference.VideoReference, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	engine.IncrResolutions()

	var (
		res       *Result
		sttTried  bool
		lastError error
	)
	if req.Explicit() {
		res, sttTried, lastError = r.resolveExplicit(ctx, ref, req)
	} else {
		res, sttTried, lastError = r.resolveAuto(ctx, ref)
	}
	if res != nil {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	engine.IncrNotFound()
	if sttTried && r.failures != nil {
		msg := ErrNotFound.Error()
		if lastError != nil {
			msg = lastError.Error()
		}
		r.failures.Record(engine.Failure{
			URL:      ref.URL,
			Type:     string(req.Type),
			Language: req.Language,
			Error:    msg,
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.URL)
}

// resolveExplicit makes one extraction attempt, then at most one STT attempt.
func (r *Resolver) resolveExplicit(ctx context.Context, ref reference.VideoReference, req Request) (*Result, bool, error) {
	typ := req.Type
	if typ == "" {
		typ = Auto
	}
	lang := req.Language
	if lang == "" {
		lang = r.defaultLang
	}

	content, err := r.extract(ctx, ref, typ, lang)
	if content != "" {
		return &Result{VideoID: ref.ID, Type: typ, Language: lang, Content: content, Origin: Extracted}, false, nil
	}
	if !r.sttEnabled() || ctx.Err() != nil {
		return nil, false, err
	}
	res, err := r.synthesize(ctx, ref, req.Language)
	return res, true, err
}

// resolveAuto walks official tracks, then auto tracks, then STT once.
func (r *Resolver) resolveAuto(ctx context.Context, ref reference.VideoReference) (*Result, bool, error) {
	cat, err := r.catalog(ctx, ref)
	if err != nil {
		slog.Warn("resolver: catalog unavailable, treating as empty",
			slog.String("url", ref.URL), slog.Any("error", err))
		cat = TrackCatalog{}
	}

	var lastErr error
	attempts := []struct {
		typ   TrackType
		langs []string
	}{
		{Official, cat.Official},
		{Auto, autoOrder(cat.Auto)},
	}
	for _, a := range attempts {
		for _, lang := range a.langs {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			content, err := r.extract(ctx, ref, a.typ, lang)
			if content != "" {
				return &Result{VideoID: ref.ID, Type: a.typ, Language: lang, Content: content, Origin: Extracted}, false, nil
			}
			if err != nil {
				lastErr = err
			}
		}
	}

	if !r.sttEnabled() || ctx.Err() != nil {
		return nil, false, lastErr
	}
	res, err := r.synthesize(ctx, ref, "")
	return res, true, err
}

// extract fetches one track. Errors are logged and reported as a miss.
func (r *Resolver) extract(ctx context.Context, ref reference.VideoReference, typ TrackType, lang string) (string, error) {
	content, err := r.ext.Subtitles(ctx, ref.URL, typ == Auto, lang)
	if err != nil {
		slog.Warn("resolver: extraction failed",
			slog.String("url", ref.URL), slog.String("type", string(typ)),
			slog.String("lang", lang), slog.Any("error", err))
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		slog.Debug("resolver: no track", slog.String("url", ref.URL),
			slog.String("type", string(typ)), slog.String("lang", lang))
	}
	return content, nil
}

// synthesize runs the STT fallback once. lang "" means auto-detect.
func (r *Resolver) synthesize(ctx context.Context, ref reference.VideoReference, lang string) (*Result, error) {
	audio, err := r.ext.AudioURL(ctx, ref.URL)
	if err != nil {
		slog.Warn("resolver: audio locator failed", slog.String("url", ref.URL), slog.Any("error", err))
		return nil, err
	}
	content, err := r.stt.Transcribe(ctx, audio, lang)
	if err != nil {
		slog.Warn("resolver: speech-to-text failed",
			slog.String("url", ref.URL), slog.String("lang", lang), slog.Any("error", err))
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	slog.Info("resolver: synthesized transcript", slog.String("url", ref.URL), slog.Int("chars", len(content)))
	return &Result{VideoID: ref.ID, Type: Auto, Language: lang, Content: content, Origin: Synthesized}, nil
}
