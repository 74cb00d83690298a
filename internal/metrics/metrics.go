package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// DispatchAttempts counts upstream dispatch attempts by account and outcome
	DispatchAttempts *prometheus.CounterVec
	// Failovers counts account failovers by reason
	Failovers *prometheus.CounterVec
	// TokenRefreshes counts token refresh operations by account and status
	TokenRefreshes *prometheus.CounterVec
	// OAuthSessions tracks live OAuth sessions
	OAuthSessions prometheus.Gauge
	// SessionsSwept counts expired sessions removed by the sweeper
	SessionsSwept prometheus.Counter
	// RateLimitedAccounts tracks accounts currently in cooldown
	RateLimitedAccounts prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		DispatchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts_total",
				Help:      "Total number of upstream dispatch attempts",
			},
			[]string{"account", "outcome"},
		),
		Failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failovers_total",
				Help:      "Total number of account failovers",
			},
			[]string{"reason"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of access token refresh operations",
			},
			[]string{"account", "status"},
		),
		OAuthSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "oauth_sessions",
				Help:      "Current number of live OAuth sessions",
			},
		),
		SessionsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_sessions_swept_total",
				Help:      "Total number of expired OAuth sessions removed",
			},
		),
		RateLimitedAccounts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limited_accounts",
				Help:      "Number of accounts currently in rate-limit cooldown",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.DispatchAttempts,
		m.Failovers,
		m.TokenRefreshes,
		m.OAuthSessions,
		m.SessionsSwept,
		m.RateLimitedAccounts,
		m.ErrorCounter,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordAttempt records one upstream dispatch attempt. An empty account
// label marks the unauthenticated fallback.
func (m *Metrics) RecordAttempt(account, outcome string) {
	if account == "" {
		account = "unauthenticated"
	}
	m.DispatchAttempts.WithLabelValues(account, outcome).Inc()
}

// RecordFailover records an advance to the next candidate account
func (m *Metrics) RecordFailover(reason string) {
	m.Failovers.WithLabelValues(reason).Inc()
}

// RecordTokenRefresh records a token refresh operation
func (m *Metrics) RecordTokenRefresh(account, status string) {
	m.TokenRefreshes.WithLabelValues(account, status).Inc()
}

// SetOAuthSessions sets the live session gauge
func (m *Metrics) SetOAuthSessions(count int) {
	m.OAuthSessions.Set(float64(count))
}

// RecordSessionsSwept adds removed sessions to the sweep counter
func (m *Metrics) RecordSessionsSwept(count int) {
	m.SessionsSwept.Add(float64(count))
}

// SetRateLimitedAccounts sets the cooldown gauge
func (m *Metrics) SetRateLimitedAccounts(count int) {
	m.RateLimitedAccounts.Set(float64(count))
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
