package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/store"
)

func seedStore(t *testing.T, accounts ...*models.Account) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	for _, acc := range accounts {
		require.NoError(t, st.SetAccount(acc))
	}
	return st
}

func names(accounts models.AccountSlice) []string {
	out := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, acc.Name)
	}
	return out
}

func TestCandidatesOrdering(t *testing.T) {
	now := time.Now()
	st := seedStore(t,
		&models.Account{Name: "free-a", APIKey: "k1", Tier: "free", Enabled: true},
		&models.Account{Name: "pro-low", APIKey: "k2", Tier: "pro", Priority: 1, Enabled: true},
		&models.Account{Name: "pro-high", APIKey: "k3", Tier: "pro", Priority: 9, Enabled: true},
		&models.Account{Name: "max-1", APIKey: "k4", Tier: "max", Enabled: true},
	)

	sel := New(st)
	got := names(sel.Candidates(now))
	assert.Equal(t, []string{"max-1", "pro-high", "pro-low", "free-a"}, got)
}

func TestCandidatesSkipsUnusable(t *testing.T) {
	now := time.Now()
	limited := now.Add(time.Minute)
	recovered := now.Add(-time.Second)

	st := seedStore(t,
		&models.Account{Name: "disabled", APIKey: "k", Tier: "max", Enabled: false},
		&models.Account{Name: "limited", APIKey: "k", Tier: "max", Enabled: true, RateLimitedUntil: &limited},
		&models.Account{Name: "recovered", APIKey: "k", Tier: "pro", Enabled: true, RateLimitedUntil: &recovered},
		&models.Account{Name: "ready", APIKey: "k", Tier: "max", Enabled: true},
	)

	sel := New(st)
	got := names(sel.Candidates(now))
	assert.Equal(t, []string{"ready", "recovered"}, got)
}

func TestCandidatesEmptyStore(t *testing.T) {
	sel := New(store.NewMemoryStore())
	assert.Empty(t, sel.Candidates(time.Now()))
}

func TestMarkUsed(t *testing.T) {
	sel := New(store.NewMemoryStore())

	_, ok := sel.LastUsed("acct")
	assert.False(t, ok)

	now := time.Now()
	sel.MarkUsed("acct", now)

	got, ok := sel.LastUsed("acct")
	require.True(t, ok)
	assert.Equal(t, now, got)
}

func TestNameTiebreakIsStable(t *testing.T) {
	now := time.Now()
	st := seedStore(t,
		&models.Account{Name: "b", APIKey: "k", Tier: "pro", Priority: 5, Enabled: true},
		&models.Account{Name: "a", APIKey: "k", Tier: "pro", Priority: 5, Enabled: true},
		&models.Account{Name: "c", APIKey: "k", Tier: "pro", Priority: 5, Enabled: true},
	)

	sel := New(st)
	assert.Equal(t, []string{"a", "b", "c"}, names(sel.Candidates(now)))
}
