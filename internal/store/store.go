package store

import (
	"time"

	"github.com/relayguard/relayguard/internal/models"
)

// Store is the shared persistence interface for accounts and OAuth sessions.
// All mutations are atomic with respect to concurrent readers of the same key.
type Store interface {
	// Account operations
	GetAccount(name string) (*models.Account, bool)
	SetAccount(acc *models.Account) error
	UpdateAccountTokens(name string, result models.TokenResult) error
	SetAccountRateLimitedUntil(name string, until *time.Time) error
	DeleteAccount(name string) bool
	ListAccounts() models.AccountSlice
	ListEnabledAccounts() models.AccountSlice

	// OAuth session operations
	CreateSession(sess *models.OAuthSession) error
	GetSession(id string) (*models.OAuthSession, bool)
	DeleteSession(id string) error
	CleanupExpiredSessions() (int, error)

	// Management
	Clear()
	Close() error
}

// Stats contains store statistics.
type Stats struct {
	Accounts int `json:"accounts"`
	Sessions int `json:"sessions"`
}
