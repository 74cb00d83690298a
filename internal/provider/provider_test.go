package provider

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	p, err := New("https://api.example.com/")
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{"plain path", "/v1/messages", "", "https://api.example.com/v1/messages"},
		{"with query", "/v1/messages", "beta=true", "https://api.example.com/v1/messages?beta=true"},
		{"missing leading slash", "v1/models", "", "https://api.example.com/v1/models"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.path, tt.rawQuery))
		})
	}
}

func TestPrepareHeaders(t *testing.T) {
	p, err := New("https://api.example.com")
	require.NoError(t, err)

	original := http.Header{
		"Content-Type":    {"application/json"},
		"Authorization":   {"Bearer client-supplied"},
		"X-Api-Key":       {"client-key"},
		"Connection":      {"keep-alive"},
		"Accept-Encoding": {"gzip"},
		"User-Agent":      {"claude-cli/1.0.0"},
	}

	t.Run("bearer wins over api key", func(t *testing.T) {
		h := p.PrepareHeaders(original, "tok-123", "sk-unused")
		assert.Equal(t, "Bearer tok-123", h.Get("Authorization"))
		assert.Empty(t, h.Get("X-Api-Key"))
	})

	t.Run("api key when no token", func(t *testing.T) {
		h := p.PrepareHeaders(original, "", "sk-live")
		assert.Equal(t, "sk-live", h.Get("X-Api-Key"))
		assert.Empty(t, h.Get("Authorization"))
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := p.PrepareHeaders(original, "", "")
		assert.Empty(t, h.Get("Authorization"))
		assert.Empty(t, h.Get("X-Api-Key"))
	})

	t.Run("hop-by-hop and client credentials stripped", func(t *testing.T) {
		h := p.PrepareHeaders(original, "tok", "")
		assert.Empty(t, h.Get("Connection"))
		assert.Empty(t, h.Get("Accept-Encoding"))
		assert.Equal(t, "application/json", h.Get("Content-Type"))
		assert.Equal(t, "claude-cli/1.0.0", h.Get("User-Agent"))
	})

	t.Run("anthropic version defaulted", func(t *testing.T) {
		h := p.PrepareHeaders(http.Header{}, "tok", "")
		assert.Equal(t, "2023-06-01", h.Get("Anthropic-Version"))

		withVersion := http.Header{"Anthropic-Version": {"2024-10-22"}}
		h = p.PrepareHeaders(withVersion, "tok", "")
		assert.Equal(t, "2024-10-22", h.Get("Anthropic-Version"))
	})
}

func TestInspect(t *testing.T) {
	p, err := New("https://api.example.com")
	require.NoError(t, err)

	assert.False(t, p.Inspect(nil).Limited)
	assert.False(t, p.Inspect(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}}).Limited)

	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": {"30"}},
	}
	info := p.Inspect(resp)
	assert.True(t, info.Limited)
	require.False(t, info.ResetAt.IsZero())
	assert.WithinDuration(t, time.Now().Add(30*time.Second), info.ResetAt, time.Second)
}

func TestSanitizeResponseHeaders(t *testing.T) {
	src := http.Header{
		"Content-Type":      {"application/json"},
		"Transfer-Encoding": {"chunked"},
		"Connection":        {"close"},
		"Request-Id":        {"req_abc"},
	}
	out := SanitizeResponseHeaders(src)
	assert.Equal(t, "application/json", out.Get("Content-Type"))
	assert.Equal(t, "req_abc", out.Get("Request-Id"))
	assert.Empty(t, out.Get("Transfer-Encoding"))
	assert.Empty(t, out.Get("Connection"))
}

func TestFirstPartyClient(t *testing.T) {
	assert.True(t, FirstPartyClient(http.Header{"User-Agent": {"claude-cli/1.0.30 (external)"}}))
	assert.False(t, FirstPartyClient(http.Header{"User-Agent": {"curl/8.4.0"}}))
	assert.False(t, FirstPartyClient(http.Header{}))
}

func TestStandardAPIPath(t *testing.T) {
	assert.True(t, StandardAPIPath("/v1/messages"))
	assert.False(t, StandardAPIPath("/v1/claude_code/completions"))
}
