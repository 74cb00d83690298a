package models

import "time"

// TokenResult is the outcome of an authorization-code exchange or a refresh.
// ExpiresAt is absolute; the token endpoint reports relative expires_in.
type TokenResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PKCEChallenge binds an authorization code to a client-held secret. The
// verifier stays local; only the derived challenge goes to the authorization
// server. Consumed exactly once at exchange time.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
}
