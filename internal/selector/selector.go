package selector

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/store"
)

// Selector orders accounts for dispatch. Disabled accounts and accounts
// whose rate-limit cooldown has not elapsed are excluded from candidates.
type Selector struct {
	store store.Store

	mu       sync.RWMutex
	lastUsed map[string]time.Time // account name -> last dispatch time
}

func New(st store.Store) *Selector {
	return &Selector{
		store:    st,
		lastUsed: make(map[string]time.Time),
	}
}

// Candidates returns accounts eligible for a dispatch attempt at now,
// ordered most preferred first. The returned slice is owned by the caller.
func (s *Selector) Candidates(now time.Time) models.AccountSlice {
	accounts := s.store.ListEnabledAccounts()
	usable := accounts.FilterUsable(now)

	sort.SliceStable(usable, func(i, j int) bool {
		if ti, tj := tierRank(usable[i].Tier), tierRank(usable[j].Tier); ti != tj {
			return ti > tj
		}
		if usable[i].Priority != usable[j].Priority {
			return usable[i].Priority > usable[j].Priority
		}
		return usable[i].Name < usable[j].Name
	})
	return usable
}

// MarkUsed records that an account was just dispatched to.
func (s *Selector) MarkUsed(name string, now time.Time) {
	s.mu.Lock()
	s.lastUsed[name] = now
	s.mu.Unlock()
}

// LastUsed reports when an account last carried a request.
func (s *Selector) LastUsed(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastUsed[name]
	return t, ok
}

func tierRank(tier string) int {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "max", "enterprise":
		return 3
	case "pro", "team":
		return 2
	case "free", "":
		return 1
	default:
		return 0
	}
}
