package session

import (
	"context"
	"sync"
	"time"

	"propdash/internal/domain"
)

// MemoryBackend keeps sessions in process memory. Entries are replaced
// wholesale on Put, so a reader never sees a partially written session.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var _ domain.SessionRepository = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryBackend) Name() string { return BackendMemory }

func (m *MemoryBackend) Put(_ context.Context, s *domain.Session, _ time.Duration) error {
	cp := *s
	m.mu.Lock()
	m.sessions[s.ID] = &cp
	m.mu.Unlock()
	return nil
}

// Get returns a shallow copy; the table itself is shared and must be
// treated as read-only.
func (m *MemoryBackend) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	var cp domain.Session
	if ok {
		cp = *s
	}
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &cp, nil
}

func (m *MemoryBackend) Info(_ context.Context, id string) (*domain.SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Info(), nil
}

func (m *MemoryBackend) Touch(_ context.Context, id string, at time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	cp := *s
	cp.LastAccessedAt = at
	m.sessions[id] = &cp
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
