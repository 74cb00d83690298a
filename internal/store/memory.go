package store

import (
	"sync"
	"time"

	"github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/models"
)

// MemoryStore provides in-memory storage for accounts and OAuth sessions.
// It is thread-safe and supports concurrent access.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account      // key: account name
	sessions map[string]*models.OAuthSession // key: session ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*models.Account),
		sessions: make(map[string]*models.OAuthSession),
	}
}

// Account operations

// GetAccount retrieves an account by name. The returned copy is safe to read
// without holding the store lock.
func (s *MemoryStore) GetAccount(name string) (*models.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[name]
	if !ok {
		return nil, false
	}
	cp := *acc
	return &cp, true
}

// SetAccount stores or updates an account
func (s *MemoryStore) SetAccount(acc *models.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *acc
	now := time.Now()
	if existing, ok := s.accounts[acc.Name]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.accounts[acc.Name] = &cp
	return nil
}

// UpdateAccountTokens writes a refresh result onto the account. The stored
// refresh token only rotates when the result carries a new one.
func (s *MemoryStore) UpdateAccountTokens(name string, result models.TokenResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[name]
	if !ok {
		return &errors.ErrAccountNotFound{Name: name}
	}
	acc.AccessToken = result.AccessToken
	acc.AccessTokenExpiresAt = result.ExpiresAt
	if result.RefreshToken != "" {
		acc.RefreshToken = result.RefreshToken
	}
	acc.UpdatedAt = time.Now()
	return nil
}

// SetAccountRateLimitedUntil updates the rate-limit cooldown for an account.
func (s *MemoryStore) SetAccountRateLimitedUntil(name string, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[name]
	if !ok {
		return &errors.ErrAccountNotFound{Name: name}
	}
	acc.RateLimitedUntil = until
	acc.UpdatedAt = time.Now()
	return nil
}

// DeleteAccount removes an account
func (s *MemoryStore) DeleteAccount(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[name]; !ok {
		return false
	}
	delete(s.accounts, name)
	return true
}

// ListAccounts returns copies of all accounts
func (s *MemoryStore) ListAccounts() models.AccountSlice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(models.AccountSlice, 0, len(s.accounts))
	for _, acc := range s.accounts {
		cp := *acc
		result = append(result, &cp)
	}
	return result
}

// ListEnabledAccounts returns copies of all enabled accounts
func (s *MemoryStore) ListEnabledAccounts() models.AccountSlice {
	return s.ListAccounts().FilterEnabled()
}

// OAuth session operations

// CreateSession inserts a new session. The id is caller-supplied and must be
// unique; a duplicate is a caller error, never a silent overwrite.
func (s *MemoryStore) CreateSession(sess *models.OAuthSession) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return &errors.ErrSessionExists{ID: sess.ID}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// GetSession returns the session only while unexpired. An expired record not
// yet swept is treated as absent.
func (s *MemoryStore) GetSession(id string) (*models.OAuthSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(time.Now()) {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// DeleteSession removes a session. Idempotent.
func (s *MemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// CleanupExpiredSessions removes all sessions past expiry and returns the
// number removed.
func (s *MemoryStore) CleanupExpiredSessions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Management

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*models.Account)
	s.sessions = make(map[string]*models.OAuthSession)
}

// Stats returns store statistics
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Accounts: len(s.accounts),
		Sessions: len(s.sessions),
	}
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
