package models

import (
	"fmt"
	"time"
)

// DefaultSessionTTL bounds how long an in-flight authorization attempt stays
// redeemable.
const DefaultSessionTTL = 10 * time.Minute

// OAuthSession is a short-lived record bridging the browser authorization
// handshake across requests. It holds the PKCE verifier and the anti-forgery
// state until the user-supplied code comes back for exchange.
type OAuthSession struct {
	ID          string    `json:"id"`
	AccountName string    `json:"account_name"`
	Verifier    string    `json:"verifier"`
	State       string    `json:"state,omitempty"`
	Mode        AuthMode  `json:"mode"`
	Tier        string    `json:"tier,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Validate checks if the session is valid.
func (s *OAuthSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.AccountName == "" {
		return fmt.Errorf("session account name is required")
	}
	if s.Verifier == "" {
		return fmt.Errorf("session verifier is required")
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("session expiry must be after creation")
	}
	return nil
}

// Expired reports whether the session is past its expiry at the given instant.
// Expiry is enforced at read time, not only at sweep time.
func (s *OAuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
