// Package headers parses provider response headers for rate-limit signals.
package headers

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo describes a provider rate-limit signal extracted from a
// response.
type RateLimitInfo struct {
	Limited bool
	// ResetAt is when the limit is expected to lift; zero when the provider
	// gave no usable hint.
	ResetAt time.Time
}

// Parse inspects a response for rate-limit signals. A 429 status is always a
// limit; otherwise provider reset headers are consulted. The reset hint is
// taken from Retry-After (seconds or HTTP date), a unix-epoch reset header,
// or an RFC 3339 reset header, in that order.
func Parse(statusCode int, h http.Header) RateLimitInfo {
	info := RateLimitInfo{Limited: statusCode == http.StatusTooManyRequests}
	if !info.Limited {
		return info
	}

	if resetAt, ok := parseRetryAfter(h.Get("Retry-After")); ok {
		info.ResetAt = resetAt
		return info
	}

	for _, name := range []string{
		"X-Ratelimit-Reset",
		"Anthropic-Ratelimit-Requests-Reset",
		"Anthropic-Ratelimit-Tokens-Reset",
	} {
		if resetAt, ok := parseReset(h.Get(name)); ok {
			info.ResetAt = resetAt
			return info
		}
	}

	return info
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Now().Add(time.Duration(seconds) * time.Second), true
	}
	if t, err := http.ParseTime(value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// parseReset handles unix-epoch seconds and RFC 3339 timestamps.
func parseReset(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if epoch, err := strconv.ParseInt(value, 10, 64); err == nil && epoch > 0 {
		return time.Unix(epoch, 0), true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
