// Package reference validates caller-supplied video references and reduces
// them to one canonical URL. It performs no network I/O.
package reference

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidReference is wrapped by every validation failure.
var ErrInvalidReference = errors.New("invalid video reference")

// DefaultAllowedHosts is the host allow-list used when none is configured.
var DefaultAllowedHosts = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}

const watchURL = "https://www.youtube.com/watch?v="

var (
	bareIDRe  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	pathIDRe  = regexp.MustCompile(`^/(?:shorts|embed|live|v)/([A-Za-z0-9_-]{11})(?:/.*)?$`)
	shortIDRe = regexp.MustCompile(`^/([A-Za-z0-9_-]{11})/?$`)
)

// VideoReference is a canonicalized video reference.
type VideoReference struct {
	URL string `json:"url"`
	ID  string `json:"video_id"`
}

// Normalizer canonicalizes references against a host allow-list.
type Normalizer struct {
	allowed []string
}

// NewNormalizer returns a Normalizer. An empty allow-list means DefaultAllowedHosts.
func NewNormalizer(allowedHosts []string) *Normalizer {
	var hosts []string
	for _, h := range allowedHosts {
		h = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		hosts = DefaultAllowedHosts
	}
	return &Normalizer{allowed: hosts}
}

// Normalize validates raw and returns its canonical form.
func (n *Normalizer) Normalize(raw string) (VideoReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VideoReference{}, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}
	if bareIDRe.MatchString(raw) {
		return VideoReference{URL: watchURL + raw, ID: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return VideoReference{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return VideoReference{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, u.Scheme)
	}
	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return VideoReference{}, fmt.Errorf("%w: bad host: %v", ErrInvalidReference, err)
	}
	if host == "" {
		return VideoReference{}, fmt.Errorf("%w: missing host", ErrInvalidReference)
	}
	if !n.allowedHost(host) {
		return VideoReference{}, fmt.Errorf("%w: unsupported host %q", ErrInvalidReference, host)
	}

	if id := youtubeID(host, u); id != "" {
		return VideoReference{URL: watchURL + id, ID: id}, nil
	}

	canon := url.URL{Scheme: "https", Host: host, Path: u.Path, RawQuery: sortedQuery(u.Query())}
	if canon.Path == "" {
		canon.Path = "/"
	}
	out := canon.String()
	return VideoReference{URL: out, ID: derivedID(out)}, nil
}

// allowedHost reports whether host equals or is a subdomain of an allow-list entry.
func (n *Normalizer) allowedHost(host string) bool {
	bare := strings.TrimPrefix(host, "www.")
	for _, a := range n.allowed {
		if bare == a || strings.HasSuffix(bare, "."+a) {
			return true
		}
	}
	return false
}

func canonicalHost(h string) (string, error) {
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	if h == "" {
		return "", nil
	}
	return idna.Lookup.ToASCII(h)
}

// youtubeID extracts a video id from the URL forms YouTube serves.
func youtubeID(host string, u *url.URL) string {
	bare := strings.TrimPrefix(host, "www.")
	switch {
	case bare == "youtu.be":
		if m := shortIDRe.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	case bare == "youtube.com" || strings.HasSuffix(bare, ".youtube.com") ||
		bare == "youtube-nocookie.com" || strings.HasSuffix(bare, ".youtube-nocookie.com"):
		if u.Path == "/watch" {
			if v := u.Query().Get("v"); bareIDRe.MatchString(v) {
				return v
			}
			return ""
		}
		if m := pathIDRe.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	}
	return ""
}

func sortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// derivedID is the stable identifier for URLs without a platform video id.
func derivedID(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("u_%x", sum[:8])
}
