// Package cleanup removes expired OAuth sessions on a fixed interval.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relayguard/relayguard/internal/logging"
	"github.com/relayguard/relayguard/internal/store"
)

// MetricsRecorder receives sweep counts, satisfied by *metrics.Metrics.
type MetricsRecorder interface {
	RecordSessionsSwept(count int)
}

// Stats contains sweeper statistics.
type Stats struct {
	TotalRuns    int       `json:"total_runs"`
	TotalRemoved int       `json:"total_removed"`
	LastRunAt    time.Time `json:"last_run_at"`
	LastRemoved  int       `json:"last_removed"`
}

// Sweeper periodically deletes expired OAuth sessions from the store.
type Sweeper struct {
	store    store.Store
	interval time.Duration
	logger   *logging.Logger
	metrics  MetricsRecorder

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	stats   Stats
}

type Option func(*Sweeper)

func WithLogger(l *logging.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(st store.Store, interval time.Duration, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Sweeper{
		store:    st,
		interval: interval,
		logger:   logging.NewLogger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. Returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true

	go s.loop(ctx)
	return nil
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	<-s.done
}

// RunOnce performs a single sweep and returns the number of sessions removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	removed, err := s.store.CleanupExpiredSessions()
	if err != nil {
		s.logger.ErrorWithContext(ctx, "session sweep failed", "error", err.Error())
		return 0, err
	}

	s.mu.Lock()
	s.stats.TotalRuns++
	s.stats.TotalRemoved += removed
	s.stats.LastRunAt = time.Now()
	s.stats.LastRemoved = removed
	s.mu.Unlock()

	if removed > 0 {
		s.logger.InfoWithContext(ctx, "expired sessions removed", "count", removed)
		if s.metrics != nil {
			s.metrics.RecordSessionsSwept(removed)
		}
	}
	return removed, nil
}

// GetStats returns a snapshot of sweeper statistics.
func (s *Sweeper) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}
