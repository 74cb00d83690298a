package models

import (
	"fmt"
	"sort"
	"time"
)

// AuthMode selects which authorization surface an OAuth flow targets.
type AuthMode string

const (
	ModeConsole AuthMode = "console"
	ModeMax     AuthMode = "max"
)

// Valid reports whether the mode is a known authorization surface.
func (m AuthMode) Valid() bool {
	return m == ModeConsole || m == ModeMax
}

// Account represents a named credential unit used to authenticate upstream
// requests. An account carries either a static API key, an OAuth refresh
// token, or both; the mode decides which credential path a request uses.
type Account struct {
	Name                 string     `json:"name"`
	APIKey               string     `json:"api_key,omitempty"`
	RefreshToken         string     `json:"refresh_token,omitempty"`
	AccessToken          string     `json:"access_token,omitempty"`
	AccessTokenExpiresAt time.Time  `json:"access_token_expires_at,omitempty"`
	Tier                 string     `json:"tier"`
	Priority             int        `json:"priority"`
	Enabled              bool       `json:"enabled"`
	Mode                 AuthMode   `json:"mode,omitempty"`
	RateLimitedUntil     *time.Time `json:"rate_limited_until,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Validate checks if the account is valid.
func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if a.APIKey == "" && a.RefreshToken == "" {
		return fmt.Errorf("account %s needs an api key or a refresh token", a.Name)
	}
	if a.Mode != "" && !a.Mode.Valid() {
		return fmt.Errorf("account %s has unknown mode %q", a.Name, a.Mode)
	}
	return nil
}

// IsOAuth returns true when the account authenticates via the OAuth token path.
func (a *Account) IsOAuth() bool {
	return a.RefreshToken != ""
}

// IsRateLimited reports whether the account is still inside a rate-limit
// cooldown at the given instant.
func (a *Account) IsRateLimited(now time.Time) bool {
	return a.RateLimitedUntil != nil && now.Before(*a.RateLimitedUntil)
}

// HasValidAccessToken reports whether the cached access token is usable with
// the given safety margin before expiry.
func (a *Account) HasValidAccessToken(now time.Time, margin time.Duration) bool {
	if a.AccessToken == "" || a.AccessTokenExpiresAt.IsZero() {
		return false
	}
	return now.Before(a.AccessTokenExpiresAt.Add(-margin))
}

// AccountSlice is a slice of accounts with helper methods.
type AccountSlice []*Account

// FindByName returns an account by name.
func (as AccountSlice) FindByName(name string) (*Account, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// FilterEnabled returns only enabled accounts.
func (as AccountSlice) FilterEnabled() AccountSlice {
	var result AccountSlice
	for _, a := range as {
		if a.Enabled {
			result = append(result, a)
		}
	}
	return result
}

// FilterUsable returns enabled accounts whose rate-limit cooldown has passed.
func (as AccountSlice) FilterUsable(now time.Time) AccountSlice {
	var result AccountSlice
	for _, a := range as {
		if a.Enabled && !a.IsRateLimited(now) {
			result = append(result, a)
		}
	}
	return result
}

// SortByPriority sorts accounts by priority (higher first), name as tiebreak
// so candidate order is deterministic.
func (as AccountSlice) SortByPriority() AccountSlice {
	result := make(AccountSlice, len(as))
	copy(result, as)

	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].Name < result[j].Name
	})

	return result
}
