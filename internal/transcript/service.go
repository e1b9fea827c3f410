package transcript

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/reference"
	"github.com/anatolykoptev/go_transcript/internal/toolutil"
)

// Cache key namespaces.
const (
	keyAvail         = "avail:"
	keyInfo          = "info:"
	keySub           = "sub:"
	autoDiscoveryKey = "auto-discovery"
	// anyLangKey stands in for an omitted language in explicit requests.
	anyLangKey = "any"
)

// ServiceConfig holds cache lifetimes.
type ServiceConfig struct {
	MetadataTTL  time.Duration
	SubtitlesTTL time.Duration
}

// Service fronts the resolver with the result cache and coalesces
// identical concurrent work.
type Service struct {
	ext      Extractor
	resolver *Resolver
	cache    *engine.Cache
	cfg      ServiceConfig
	group    singleflight.Group
}

// NewService wires the resolver to cache. The resolver's auto-discovery
// reads the catalog through the cache.
func NewService(ext Extractor, stt Transcriber, cache *engine.Cache, failures *engine.FailureLog, defaultLang string, cfg ServiceConfig) *Service {
	s := &Service{ext: ext, cache: cache, cfg: cfg}
	s.resolver = NewResolver(ext, stt, defaultLang, WithCatalog(s.Catalog), WithFailureLog(failures))
	return s
}

// SubtitleKey returns the cache key for a resolution of url under req.
func SubtitleKey(url string, req Request) string {
	if !req.Explicit() {
		return keySub + url + ":" + autoDiscoveryKey
	}
	typ := req.Type
	if typ == "" {
		typ = Auto
	}
	lang := req.Language
	if lang == "" {
		lang = anyLangKey
	}
	return keySub + url + ":" + string(typ) + ":" + lang
}

// Transcript resolves ref, serving from cache when possible. Only
// successful results are cached.
func (s *Service) Transcript(ctx context.Context, ref reference.VideoReference, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := SubtitleKey(ref.URL, req)

	if cached, ok := toolutil.CacheLoadJSON[Result](ctx, s.cache, key); ok {
		return &cached, nil
	}

	slog.Debug("service: cache miss, resolving", slog.String("url", ref.URL), slog.String("mode", req.String()))
	v, err := s.shared(ctx, key, func(ctx context.Context) (any, error) {
		res, err := s.resolver.Resolve(ctx, ref, req)
		if err != nil {
			return nil, err
		}
		toolutil.CacheStoreJSON(ctx, s.cache, key, *res, s.cfg.SubtitlesTTL)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Catalog returns the track catalog for ref, cached under the metadata TTL.
func (s *Service) Catalog(ctx context.Context, ref reference.VideoReference) (TrackCatalog, error) {
	if cat, ok := toolutil.CacheLoadJSON[TrackCatalog](ctx, s.cache, keyAvail+ref.URL); ok {
		return cat, nil
	}
	m, err := s.metadata(ctx, ref)
	if err != nil {
		return TrackCatalog{}, err
	}
	return m.catalog, nil
}

// Info returns the metadata summary for ref, cached under the metadata TTL.
func (s *Service) Info(ctx context.Context, ref reference.VideoReference) (VideoInfo, error) {
	if info, ok := toolutil.CacheLoadJSON[VideoInfo](ctx, s.cache, keyInfo+ref.URL); ok {
		return info, nil
	}
	m, err := s.metadata(ctx, ref)
	if err != nil {
		return VideoInfo{}, err
	}
	return m.info, nil
}

type metadataSummary struct {
	info    VideoInfo
	catalog TrackCatalog
}

// metadata runs one extraction and populates both the catalog and info keys.
func (s *Service) metadata(ctx context.Context, ref reference.VideoReference) (metadataSummary, error) {
	v, err := s.shared(ctx, "meta:"+ref.URL, func(ctx context.Context) (any, error) {
		md, err := s.ext.Metadata(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		m := metadataSummary{info: InfoFromMetadata(ref, md), catalog: CatalogFromMetadata(md)}
		toolutil.CacheStoreJSON(ctx, s.cache, keyAvail+ref.URL, m.catalog, s.cfg.MetadataTTL)
		toolutil.CacheStoreJSON(ctx, s.cache, keyInfo+ref.URL, m.info, s.cfg.MetadataTTL)
		return m, nil
	})
	if err != nil {
		return metadataSummary{}, err
	}
	return v.(metadataSummary), nil
}

// shared runs fn once per key across concurrent callers. fn runs on a
// context detached from the caller so the cache is populated even if
// every waiting caller goes away.
func (s *Service) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case r := <-ch:
		if r.Shared {
			slog.Debug("service: coalesced", slog.String("key", key))
		}
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
