package alerts

import (
	"time"
)

// Severity represents alert severity level
type Severity string

const (
	// SeverityInfo is for informational alerts
	SeverityInfo Severity = "info"
	// SeverityWarning is for warning alerts
	SeverityWarning Severity = "warning"
	// SeverityCritical is for critical alerts
	SeverityCritical Severity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	// AlertTypeRateLimited fires when an account enters cooldown
	AlertTypeRateLimited AlertType = "rate_limited"
	// AlertTypeRefreshFailed fires when a token refresh fails
	AlertTypeRefreshFailed AlertType = "refresh_failed"
	// AlertTypeExhausted fires when every candidate account has failed
	AlertTypeExhausted AlertType = "exhausted"
	// AlertTypeError is for generic error alerts
	AlertTypeError AlertType = "error"
)

// Alert represents an alert to be sent
type Alert struct {
	AccountName string
	Type        AlertType
	Severity    Severity
	Message     string
	Timestamp   time.Time
}

// AlertKey creates a unique key for deduplication
func (a *Alert) AlertKey() string {
	return a.AccountName + ":" + string(a.Type) + ":" + string(a.Severity)
}
