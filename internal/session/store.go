// Package session owns the lifecycle of uploaded datasets: creation,
// retrieval with sliding expiry, deletion and periodic sweeping, over a
// pluggable backend (memory, redis or sqlite).
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"propdash/internal/domain"
)

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Backend is the persistence contract a Store runs on.
type Backend = domain.SessionRepository

// Store is the session manager. It enforces expiry lazily on access and
// serializes mutations of one id, while reads and distinct ids proceed in
// parallel.
type Store struct {
	backend Backend
	timeout time.Duration
	now     func() time.Time
	locks   *lockTable
	logger  *slog.Logger
}

// NewStore creates a Store over backend. Sessions idle for longer than
// timeout are treated as absent.
func NewStore(backend Backend, timeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   newLockTable(),
		logger:  logger,
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// BackendName reports which backend is active.
func (s *Store) BackendName() string { return s.backend.Name() }

// Timeout returns the idle timeout.
func (s *Store) Timeout() time.Duration { return s.timeout }

// Create stores table under a fresh id and returns it.
func (s *Store) Create(ctx context.Context, table *domain.Table, meta domain.SessionMetadata) (string, error) {
	now := s.now()
	sess := &domain.Session{
		ID:             domain.NewSessionID(),
		Table:          table,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       meta,
	}

	unlock := s.locks.lock(sess.ID)
	defer unlock()

	if err := s.backend.Put(ctx, sess, s.timeout); err != nil {
		return "", s.classify(err, sess.ID, "store session")
	}
	s.logger.Info("session created", "session_id", sess.ID, "rows", len(table.Rows), "backend", s.backend.Name())
	return sess.ID, nil
}

// Get returns the session's table and refreshes its last-access time. The
// backend read runs unlocked so concurrent readers of one id overlap; the
// expiry check and refresh are serialized with Delete and the sweep. A
// session deleted in between fails the refresh and reads as absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.Table, error) {
	sess, err := s.backend.Get(ctx, id)
	if err != nil {
		unlock := s.locks.lock(id)
		defer unlock()
		s.dropCorrupt(ctx, id, err)
		return nil, s.classify(err, id, "retrieve session")
	}

	unlock := s.locks.lock(id)
	defer unlock()
	now := s.now()
	if s.expired(sess.LastAccessedAt, now) {
		s.expire(ctx, id)
		return nil, domain.ErrNotFound("session %s not found", id)
	}
	if err := s.backend.Touch(ctx, id, now, s.timeout); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrNotFound("session %s not found", id)
		}
		// The table is in hand; a failed refresh only shortens its life.
		s.logger.Warn("refresh session access time", "session_id", id, "error", err)
	}
	return sess.Table, nil
}

// GetInfo returns session metadata without materializing the table. It does
// not refresh the access time.
func (s *Store) GetInfo(ctx context.Context, id string) (*domain.SessionInfo, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	info, err := s.backend.Info(ctx, id)
	if err != nil {
		s.dropCorrupt(ctx, id, err)
		return nil, s.classify(err, id, "read session info")
	}
	if s.expired(info.LastAccessedAt, s.now()) {
		s.expire(ctx, id)
		return nil, domain.ErrNotFound("session %s not found", id)
	}
	return info, nil
}

// Exists reports whether id names a live session.
func (s *Store) Exists(ctx context.Context, id string) bool {
	_, err := s.GetInfo(ctx, id)
	return err == nil
}

// Delete removes the session. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.backend.Delete(ctx, id); err != nil {
		return s.classify(err, id, "delete session")
	}
	s.logger.Info("session deleted", "session_id", id)
	return nil
}

// SweepExpired removes every session idle for longer than maxAge and
// returns how many were removed.
func (s *Store) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	n, err := s.backend.SweepExpired(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, domain.ErrStorage(domain.CodeStorageUnavailable, err, "sweep expired sessions")
	}
	if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	return n, nil
}

// Len reports how many sessions are held, when the backend can count them
// without a scan.
func (s *Store) Len() (int, bool) {
	if c, ok := s.backend.(interface{ Len() int }); ok {
		return c.Len(), true
	}
	return 0, false
}

// Ping checks backend reachability.
func (s *Store) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) expired(lastAccessed, now time.Time) bool {
	return s.timeout > 0 && now.Sub(lastAccessed) > s.timeout
}

func (s *Store) expire(ctx context.Context, id string) {
	if err := s.backend.Delete(ctx, id); err != nil {
		s.logger.Warn("delete expired session", "session_id", id, "error", err)
		return
	}
	s.logger.Info("session expired", "session_id", id)
}

// dropCorrupt removes an entry that can no longer be decoded.
func (s *Store) dropCorrupt(ctx context.Context, id string, err error) {
	if !errors.Is(err, domain.ErrSessionCorrupt) {
		return
	}
	if derr := s.backend.Delete(ctx, id); derr != nil {
		s.logger.Warn("delete corrupt session", "session_id", id, "error", derr)
	}
}

// classify maps backend errors onto the domain taxonomy.
func (s *Store) classify(err error, id, op string) error {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.logger.Debug("session not found", "session_id", id)
		return domain.ErrNotFound("session %s not found", id)
	case errors.Is(err, domain.ErrSessionCorrupt):
		s.logger.Error("session corrupt", "session_id", id, "error", err)
		return domain.ErrStorage(domain.CodeSessionCorrupt, err, "%s", op)
	default:
		s.logger.Error("session backend failure", "session_id", id, "op", op, "error", err)
		return domain.ErrStorage(domain.CodeStorageUnavailable, err, "%s", op)
	}
}
