// Package transport serves MCP sessions over streamable HTTP and SSE.
package transport

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// EndpointResolver picks the public base URL advertised to event-stream
// clients, so reverse-proxied deployments hand out a reachable callback.
type EndpointResolver struct {
	// BaseURLs are the configured public URLs, in preference order.
	BaseURLs []string
	// GatewayHeader marks requests that arrive through an MCP gateway.
	GatewayHeader string
	// GatewayOverride, when set, is used for every gateway request.
	GatewayOverride string
	// GatewayRegistryHost is the host a gateway expects the first URL to carry.
	GatewayRegistryHost string
}

// Resolve returns the base URL without a trailing slash. A gateway
// request gets the override even when no URLs are configured; otherwise
// no URLs yields "".
func (e EndpointResolver) Resolve(r *http.Request) string {
	viaGateway := e.GatewayHeader != "" && r.Header.Get(e.GatewayHeader) != ""
	if viaGateway && e.GatewayOverride != "" {
		return trimBase(e.GatewayOverride)
	}
	if len(e.BaseURLs) == 0 {
		return ""
	}
	first := trimBase(e.BaseURLs[0])

	if viaGateway && e.GatewayRegistryHost != "" && strings.EqualFold(hostOf(first), e.GatewayRegistryHost) {
		return first
	}

	if host := requestHost(r); host != "" {
		for _, base := range e.BaseURLs {
			if strings.EqualFold(hostOf(base), host) {
				return trimBase(base)
			}
		}
	}
	return first
}

// requestHost is the first X-Forwarded-Host value, else Host, without port.
func requestHost(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host != "" {
		host, _, _ = strings.Cut(host, ",")
	} else {
		host = r.Host
	}
	return stripPort(strings.TrimSpace(host))
}

func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

func trimBase(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
