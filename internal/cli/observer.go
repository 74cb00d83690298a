package cli

import (
	"github.com/relayguard/relayguard/internal/alerts"
	"github.com/relayguard/relayguard/internal/metrics"
	"github.com/relayguard/relayguard/internal/proxy"
)

// dispatchObserver fans dispatch outcomes out to Prometheus metrics and,
// when configured, the Telegram alert service.
type dispatchObserver struct {
	metrics *metrics.Metrics
	alerts  *alerts.Service
}

func (o *dispatchObserver) RecordAttempt(account, outcome string) {
	o.metrics.RecordAttempt(account, outcome)
	if o.alerts == nil {
		return
	}
	switch {
	case account == "":
		// An unauthenticated attempt means the whole pool was exhausted.
		o.alerts.Notify(alerts.Alert{
			Type:     alerts.AlertTypeExhausted,
			Severity: alerts.SeverityCritical,
			Message:  "all accounts exhausted, served unauthenticated fallback",
		})
	case outcome == proxy.OutcomeRateLimited:
		o.alerts.Notify(alerts.Alert{
			AccountName: account,
			Type:        alerts.AlertTypeRateLimited,
			Severity:    alerts.SeverityWarning,
			Message:     "entered rate-limit cooldown",
		})
	}
}

func (o *dispatchObserver) RecordFailover(reason string) {
	o.metrics.RecordFailover(reason)
}
