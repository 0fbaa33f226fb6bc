// Package sweep periodically evicts idle sessions and stale rate-limit
// windows.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"propdash/internal/metrics"
)

// SessionSweeper removes sessions idle for longer than maxAge.
type SessionSweeper interface {
	SweepExpired(ctx context.Context, maxAge time.Duration) (int, error)
	Timeout() time.Duration
}

// ClientSweeper drops rate-limit state for clients with no recent requests.
type ClientSweeper interface {
	Sweep() int
}

// Scheduler runs the sweep on a fixed interval.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionSweeper
	clients  ClientSweeper // nil when upload admission is disabled
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	baseCtx context.Context
}

// NewScheduler creates a Scheduler. clients may be nil.
func NewScheduler(sessions SessionSweeper, clients ClientSweeper, m *metrics.Metrics, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		clients:  clients,
		metrics:  m,
		interval: interval,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// Start registers the sweep job and starts the cron scheduler. Jobs run
// with ctx as their parent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}
	spec := fmt.Sprintf("@every %s", s.interval)
	id, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.jobContext()) })
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.entry = id
	s.baseCtx = ctx
	s.cron.Start()
	s.logger.Info("sweep scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// RunOnce performs a single sweep and reports what it removed.
func (s *Scheduler) RunOnce(ctx context.Context) (sessions, clients int) {
	if ctx.Err() != nil {
		return 0, 0
	}
	n, err := s.sessions.SweepExpired(ctx, s.sessions.Timeout())
	if err != nil {
		s.logger.Warn("session sweep failed", "error", err)
	} else {
		sessions = n
		if s.metrics != nil {
			s.metrics.SessionsSwept.Add(float64(n))
		}
	}
	if s.clients != nil {
		clients = s.clients.Sweep()
	}
	if sessions > 0 || clients > 0 {
		s.logger.Info("sweep complete", "sessions", sessions, "clients", clients)
	}
	return sessions, clients
}
