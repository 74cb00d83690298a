// Package token produces currently-valid access tokens for accounts,
// refreshing through the OAuth exchange client when the cached token is
// expired or inside the safety margin.
package token

import (
	"context"
	"time"

	"github.com/relayguard/relayguard/internal/config"
	"github.com/relayguard/relayguard/internal/logging"
	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/store"
	"golang.org/x/sync/singleflight"
)

// DefaultSafetyMargin is subtracted from the token expiry when judging
// whether the cached token is still usable.
const DefaultSafetyMargin = time.Minute

// Refresher executes the refresh-token grant. Satisfied by *oauth.Client.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string, cfg config.OAuthProviderConfig) (models.TokenResult, error)
}

// Manager caches per-account access tokens and serializes refreshes so that
// concurrent callers for the same account share a single upstream refresh.
// Duplicate refreshes can invalidate each other's refresh token under
// provider rotation policy.
type Manager struct {
	store        store.Store
	refresher    Refresher
	oauthCfg     config.OAuthConfig
	safetyMargin time.Duration
	logger       *logging.Logger
	group        singleflight.Group
}

// Option configures a Manager
type Option func(*Manager)

// WithSafetyMargin overrides the token expiry safety margin
func WithSafetyMargin(margin time.Duration) Option {
	return func(m *Manager) {
		m.safetyMargin = margin
	}
}

// WithLogger overrides the manager logger
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new token manager
func NewManager(s store.Store, refresher Refresher, oauthCfg config.OAuthConfig, opts ...Option) *Manager {
	m := &Manager{
		store:        s,
		refresher:    refresher,
		oauthCfg:     oauthCfg,
		safetyMargin: DefaultSafetyMargin,
		logger:       logging.NewLogger(),
	}
	if oauthCfg.SafetyMargin > 0 {
		m.safetyMargin = oauthCfg.SafetyMargin
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidAccessToken returns a usable access token for the account, or empty
// for pure API-key accounts (callers fall back to the API key). A refresh is
// triggered when the cached token is missing or inside the safety margin; the
// refreshed tokens are persisted onto the account before returning.
func (m *Manager) GetValidAccessToken(ctx context.Context, account *models.Account) (string, error) {
	if !account.IsOAuth() {
		return "", nil
	}

	if account.HasValidAccessToken(time.Now(), m.safetyMargin) {
		return account.AccessToken, nil
	}

	// Single flight per account: concurrent callers wait for and share the
	// in-flight refresh instead of issuing duplicates. The flight key is
	// cleared on completion so the next expiry triggers a fresh refresh.
	result, err, _ := m.group.Do(account.Name, func() (interface{}, error) {
		return m.refresh(ctx, account.Name)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (m *Manager) refresh(ctx context.Context, name string) (string, error) {
	// Re-read the account: another caller may have completed a refresh
	// between the expiry check and this flight winning the key.
	account, ok := m.store.GetAccount(name)
	if ok && account.HasValidAccessToken(time.Now(), m.safetyMargin) {
		return account.AccessToken, nil
	}
	if !ok || account.RefreshToken == "" {
		return "", &errRefreshUnavailable{name: name}
	}

	mode := account.Mode
	if mode == "" {
		mode = models.ModeConsole
	}

	// The refresh outcome is shared by every waiter; detaching from the
	// triggering request's cancellation keeps one aborted caller from
	// failing the rest.
	result, err := m.refresher.Refresh(context.WithoutCancel(ctx), account.RefreshToken, m.oauthCfg.ProviderConfig(mode))
	if err != nil {
		// Cached token stays untouched: stale but not corrupted, so a
		// later call can retry the refresh.
		m.logger.ErrorWithContext(ctx, "token refresh failed", "account", name, "error", err.Error())
		return "", err
	}

	if err := m.store.UpdateAccountTokens(name, result); err != nil {
		return "", err
	}

	m.logger.DebugWithContext(ctx, "token refreshed", "account", name, "expires_at", result.ExpiresAt.Format(time.RFC3339))
	return result.AccessToken, nil
}

type errRefreshUnavailable struct {
	name string
}

func (e *errRefreshUnavailable) Error() string {
	return "no refresh token available for account " + e.name
}
