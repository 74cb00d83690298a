package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsRecordingAndHandler(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRequestLatency("/health", "GET", "200", 0.01)
	m.RecordAttempt("acct-1", "forwarded")
	m.RecordAttempt("", "forwarded")
	m.RecordFailover("rate_limited")
	m.RecordTokenRefresh("acct-1", "success")
	m.SetOAuthSessions(3)
	m.RecordSessionsSwept(2)
	m.SetRateLimitedAccounts(1)
	m.RecordError("timeout", "/health", "GET")
	m.RecordHTTPRequest("/health", "GET", "200")
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "test_dispatch_attempts_total") {
		t.Fatalf("expected metrics output to contain dispatch attempts metric")
	}
	if !strings.Contains(body, `account="unauthenticated"`) {
		t.Fatalf("expected empty account label to be rewritten")
	}

	if _, err := m.registry.Gather(); err != nil {
		t.Fatalf("expected gather to succeed: %v", err)
	}
}
