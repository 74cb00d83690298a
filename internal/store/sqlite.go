package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides SQLite-backed storage for accounts and OAuth sessions
// with WAL mode. It is thread-safe and supports concurrent access.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS accounts (
					name TEXT PRIMARY KEY,
					api_key TEXT NOT NULL DEFAULT '',
					refresh_token TEXT NOT NULL DEFAULT '',
					access_token TEXT NOT NULL DEFAULT '',
					access_token_expires_at INTEGER NOT NULL DEFAULT 0,
					tier TEXT NOT NULL DEFAULT '',
					priority INTEGER NOT NULL DEFAULT 0,
					enabled INTEGER NOT NULL DEFAULT 1,
					mode TEXT NOT NULL DEFAULT '',
					rate_limited_until INTEGER,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				);

				CREATE TABLE IF NOT EXISTS oauth_sessions (
					id TEXT PRIMARY KEY,
					account_name TEXT NOT NULL,
					verifier TEXT NOT NULL,
					state TEXT NOT NULL DEFAULT '',
					mode TEXT NOT NULL DEFAULT '',
					tier TEXT NOT NULL DEFAULT '',
					created_at INTEGER NOT NULL,
					expires_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_oauth_sessions_expires_at
					ON oauth_sessions(expires_at);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if err := tx.Commit(); err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
	}

	return nil
}

// Timestamps are stored as unix milliseconds; zero means unset.

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Account operations

// GetAccount retrieves an account by name
func (s *SQLiteStore) GetAccount(name string) (*models.Account, bool) {
	row := s.db.QueryRow(`
		SELECT name, api_key, refresh_token, access_token, access_token_expires_at,
		       tier, priority, enabled, mode, rate_limited_until, created_at, updated_at
		FROM accounts WHERE name = ?`, name)

	acc, err := scanAccount(row)
	if err != nil {
		return nil, false
	}
	return acc, true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var acc models.Account
	var expiresMs, createdMs, updatedMs int64
	var rateLimited sql.NullInt64
	var enabled int
	var mode string

	err := row.Scan(&acc.Name, &acc.APIKey, &acc.RefreshToken, &acc.AccessToken,
		&expiresMs, &acc.Tier, &acc.Priority, &enabled, &mode, &rateLimited,
		&createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}

	acc.AccessTokenExpiresAt = fromMillis(expiresMs)
	acc.Enabled = enabled != 0
	acc.Mode = models.AuthMode(mode)
	acc.CreatedAt = fromMillis(createdMs)
	acc.UpdatedAt = fromMillis(updatedMs)
	if rateLimited.Valid {
		t := fromMillis(rateLimited.Int64)
		acc.RateLimitedUntil = &t
	}
	return &acc, nil
}

// SetAccount stores or updates an account
func (s *SQLiteStore) SetAccount(acc *models.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}

	now := time.Now()
	created := acc.CreatedAt
	if created.IsZero() {
		created = now
	}

	var rateLimited any
	if acc.RateLimitedUntil != nil {
		rateLimited = toMillis(*acc.RateLimitedUntil)
	}

	enabled := 0
	if acc.Enabled {
		enabled = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO accounts (name, api_key, refresh_token, access_token,
			access_token_expires_at, tier, priority, enabled, mode,
			rate_limited_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			api_key = excluded.api_key,
			refresh_token = excluded.refresh_token,
			access_token = excluded.access_token,
			access_token_expires_at = excluded.access_token_expires_at,
			tier = excluded.tier,
			priority = excluded.priority,
			enabled = excluded.enabled,
			mode = excluded.mode,
			rate_limited_until = excluded.rate_limited_until,
			updated_at = excluded.updated_at`,
		acc.Name, acc.APIKey, acc.RefreshToken, acc.AccessToken,
		toMillis(acc.AccessTokenExpiresAt), acc.Tier, acc.Priority, enabled,
		string(acc.Mode), rateLimited, toMillis(created), toMillis(now))
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set account", Err: err}
	}
	return nil
}

// UpdateAccountTokens writes a refresh result onto the account. The stored
// refresh token only rotates when the result carries a new one.
func (s *SQLiteStore) UpdateAccountTokens(name string, result models.TokenResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE accounts
		SET access_token = ?, access_token_expires_at = ?, updated_at = ?
		WHERE name = ?`
	args := []any{result.AccessToken, toMillis(result.ExpiresAt), toMillis(time.Now()), name}
	if result.RefreshToken != "" {
		query = `
		UPDATE accounts
		SET access_token = ?, access_token_expires_at = ?, refresh_token = ?, updated_at = ?
		WHERE name = ?`
		args = []any{result.AccessToken, toMillis(result.ExpiresAt), result.RefreshToken, toMillis(time.Now()), name}
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update account tokens", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrAccountNotFound{Name: name}
	}
	return nil
}

// SetAccountRateLimitedUntil updates the rate-limit cooldown for an account.
func (s *SQLiteStore) SetAccountRateLimitedUntil(name string, until *time.Time) error {
	var value any
	if until != nil {
		value = toMillis(*until)
	}

	res, err := s.db.Exec(`
		UPDATE accounts SET rate_limited_until = ?, updated_at = ? WHERE name = ?`,
		value, toMillis(time.Now()), name)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "set rate limited until", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.ErrAccountNotFound{Name: name}
	}
	return nil
}

// DeleteAccount removes an account
func (s *SQLiteStore) DeleteAccount(name string) bool {
	res, err := s.db.Exec("DELETE FROM accounts WHERE name = ?", name)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// ListAccounts returns all accounts
func (s *SQLiteStore) ListAccounts() models.AccountSlice {
	return s.listAccounts("SELECT name, api_key, refresh_token, access_token, access_token_expires_at, tier, priority, enabled, mode, rate_limited_until, created_at, updated_at FROM accounts ORDER BY name")
}

// ListEnabledAccounts returns all enabled accounts
func (s *SQLiteStore) ListEnabledAccounts() models.AccountSlice {
	return s.listAccounts("SELECT name, api_key, refresh_token, access_token, access_token_expires_at, tier, priority, enabled, mode, rate_limited_until, created_at, updated_at FROM accounts WHERE enabled = 1 ORDER BY name")
}

func (s *SQLiteStore) listAccounts(query string) models.AccountSlice {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var result models.AccountSlice
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			continue
		}
		result = append(result, acc)
	}
	return result
}

// OAuth session operations

// CreateSession inserts a new session; a duplicate id is an error.
func (s *SQLiteStore) CreateSession(sess *models.OAuthSession) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	// A bare INSERT keeps duplicate detection atomic: the primary key
	// rejects the loser of a concurrent create, no check-then-insert race.
	_, err := s.db.Exec(`
		INSERT INTO oauth_sessions (id, account_name, verifier, state, mode, tier, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AccountName, sess.Verifier, sess.State, string(sess.Mode),
		sess.Tier, toMillis(sess.CreatedAt), toMillis(sess.ExpiresAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &errors.ErrSessionExists{ID: sess.ID}
		}
		return &errors.ErrDatabaseQuery{Operation: "create session", Err: err}
	}
	return nil
}

// GetSession returns the session only while unexpired.
func (s *SQLiteStore) GetSession(id string) (*models.OAuthSession, bool) {
	row := s.db.QueryRow(`
		SELECT id, account_name, verifier, state, mode, tier, created_at, expires_at
		FROM oauth_sessions WHERE id = ?`, id)

	var sess models.OAuthSession
	var mode string
	var createdMs, expiresMs int64
	err := row.Scan(&sess.ID, &sess.AccountName, &sess.Verifier, &sess.State,
		&mode, &sess.Tier, &createdMs, &expiresMs)
	if err != nil {
		return nil, false
	}

	sess.Mode = models.AuthMode(mode)
	sess.CreatedAt = fromMillis(createdMs)
	sess.ExpiresAt = fromMillis(expiresMs)

	if sess.Expired(time.Now()) {
		return nil, false
	}
	return &sess, true
}

// DeleteSession removes a session. Idempotent.
func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec("DELETE FROM oauth_sessions WHERE id = ?", id); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete session", Err: err}
	}
	return nil
}

// CleanupExpiredSessions removes all sessions past expiry and returns the
// number removed.
func (s *SQLiteStore) CleanupExpiredSessions() (int, error) {
	res, err := s.db.Exec("DELETE FROM oauth_sessions WHERE expires_at <= ?", time.Now().UnixMilli())
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "cleanup sessions", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Management

// Clear removes all data from the store
func (s *SQLiteStore) Clear() {
	s.db.Exec("DELETE FROM accounts")
	s.db.Exec("DELETE FROM oauth_sessions")
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
