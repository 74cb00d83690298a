package provider

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/relayguard/relayguard/pkg/headers"
)

// Provider builds upstream URLs and credential headers for one upstream API
// and classifies its rate-limit responses. The dispatch engine depends only
// on this type, never on upstream specifics.
type Provider struct {
	baseURL *url.URL
}

func New(baseURL string) (*Provider, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	return &Provider{baseURL: u}, nil
}

// BuildURL joins the request path and raw query onto the upstream base URL.
func (p *Provider) BuildURL(path string, rawQuery string) string {
	u := *p.baseURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = rawQuery
	return u.String()
}

// PrepareHeaders copies the inbound headers minus hop-by-hop and inbound
// credential headers, then injects whichever credential the account exposes.
// A bearer token takes precedence over a static API key. With neither the
// request goes out unauthenticated.
func (p *Provider) PrepareHeaders(original http.Header, accessToken, apiKey string) http.Header {
	out := make(http.Header, len(original))
	for k, values := range original {
		canonical := http.CanonicalHeaderKey(k)
		if skipRequestHeader(canonical) {
			continue
		}
		for _, v := range values {
			out.Add(canonical, v)
		}
	}

	switch {
	case accessToken != "":
		out.Set("Authorization", "Bearer "+accessToken)
	case apiKey != "":
		out.Set("X-Api-Key", apiKey)
	}
	if out.Get("Anthropic-Version") == "" {
		out.Set("Anthropic-Version", "2023-06-01")
	}
	return out
}

// Inspect classifies an upstream response's rate-limit signal.
func (p *Provider) Inspect(resp *http.Response) headers.RateLimitInfo {
	if resp == nil {
		return headers.RateLimitInfo{}
	}
	return headers.Parse(resp.StatusCode, resp.Header)
}

// SanitizeResponseHeaders copies upstream response headers minus hop-by-hop
// entries, for verbatim forwarding to the original caller.
func SanitizeResponseHeaders(src http.Header) http.Header {
	out := make(http.Header, len(src))
	for k, values := range src {
		canonical := http.CanonicalHeaderKey(k)
		if skipResponseHeader(canonical) {
			continue
		}
		for _, v := range values {
			out.Add(canonical, v)
		}
	}
	return out
}

// FirstPartyClient reports whether the inbound request was issued by the
// provider's own CLI, recognized by its user-agent prefix.
func FirstPartyClient(h http.Header) bool {
	ua := strings.ToLower(h.Get("User-Agent"))
	return strings.HasPrefix(ua, "claude-cli")
}

// StandardAPIPath reports whether the path belongs to the general API
// surface rather than the CLI-only one.
func StandardAPIPath(path string) bool {
	return !strings.HasPrefix(path, "/v1/claude_code")
}

func skipRequestHeader(header string) bool {
	switch header {
	case "Authorization",
		"X-Api-Key",
		"Host",
		"Accept-Encoding",
		"Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization":
		return true
	default:
		return false
	}
}

func skipResponseHeader(header string) bool {
	switch header {
	case "Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization":
		return true
	default:
		return false
	}
}
