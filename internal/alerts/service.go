package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/relayguard/relayguard/internal/logging"
)

// Notifier delivers a formatted alert message, satisfied by
// *telegram.Notifier.
type Notifier interface {
	Send(text string) error
}

// Service throttles and deduplicates operational alerts before handing them
// to the notifier. Delivery failures are logged, never propagated: alerting
// must not disturb the dispatch path.
type Service struct {
	notifier  Notifier
	throttler *Throttler
	logger    *logging.Logger

	mu          sync.Mutex
	lastSent    map[string]time.Time
	dedupWindow time.Duration
}

type Option func(*Service)

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDedupWindow sets how long an identical alert key is suppressed after
// a successful send.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) { s.dedupWindow = d }
}

func WithThrottler(t *Throttler) Option {
	return func(s *Service) { s.throttler = t }
}

func NewService(notifier Notifier, opts ...Option) *Service {
	s := &Service{
		notifier:    notifier,
		throttler:   NewThrottler(30, 10),
		logger:      logging.NewLogger(),
		lastSent:    make(map[string]time.Time),
		dedupWindow: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify sends one alert, subject to dedup and throttling. Returns whether
// the alert was actually delivered to the notifier.
func (s *Service) Notify(alert Alert) bool {
	if s.notifier == nil {
		return false
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	key := alert.AlertKey()
	s.mu.Lock()
	if last, ok := s.lastSent[key]; ok && alert.Timestamp.Sub(last) < s.dedupWindow {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if !s.throttler.Allow() {
		s.logger.Warn("alert throttled", "key", key, "retry_after", s.throttler.GetRetryAfter().String())
		return false
	}

	if err := s.notifier.Send(format(alert)); err != nil {
		s.logger.Error("alert delivery failed", "key", key, "error", err.Error())
		return false
	}

	s.mu.Lock()
	s.lastSent[key] = alert.Timestamp
	s.mu.Unlock()
	return true
}

// RateLimited reports an account entering cooldown.
func (s *Service) RateLimited(account string, until time.Time) {
	s.Notify(Alert{
		AccountName: account,
		Type:        AlertTypeRateLimited,
		Severity:    SeverityWarning,
		Message:     fmt.Sprintf("rate limited until %s", until.Format(time.RFC3339)),
	})
}

// RefreshFailed reports a failed token refresh.
func (s *Service) RefreshFailed(account string, err error) {
	s.Notify(Alert{
		AccountName: account,
		Type:        AlertTypeRefreshFailed,
		Severity:    SeverityWarning,
		Message:     err.Error(),
	})
}

// Exhausted reports that every candidate account failed for a request.
func (s *Service) Exhausted(requestID string) {
	s.Notify(Alert{
		Type:     AlertTypeExhausted,
		Severity: SeverityCritical,
		Message:  fmt.Sprintf("all accounts exhausted for request %s", requestID),
	})
}

func format(alert Alert) string {
	icon := "ℹ️"
	switch alert.Severity {
	case SeverityWarning:
		icon = "⚠️"
	case SeverityCritical:
		icon = "🚨"
	}
	if alert.AccountName != "" {
		return fmt.Sprintf("%s *%s* `%s`: %s", icon, alert.Type, alert.AccountName, alert.Message)
	}
	return fmt.Sprintf("%s *%s*: %s", icon, alert.Type, alert.Message)
}
