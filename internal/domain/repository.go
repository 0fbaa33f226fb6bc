package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by session backends.
var (
	// ErrSessionNotFound means the id is unknown or its entry has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCorrupt means the stored entry exists but cannot be decoded.
	ErrSessionCorrupt = errors.New("session entry corrupt")
)

// SessionRepository persists sessions as single logical units. A reader
// either observes a complete session or ErrSessionNotFound, never a partial
// write. Implemented by the memory, redis, and sqlite backends.
type SessionRepository interface {
	// Name identifies the backend in logs and health output.
	Name() string
	// Put stores the whole session atomically. ttl is advisory for
	// backends without native expiry.
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	// Get materializes the full session.
	Get(ctx context.Context, id string) (*Session, error)
	// Info returns timestamps and metadata without decoding the table.
	Info(ctx context.Context, id string) (*SessionInfo, error)
	// Touch records a new last-accessed time and, for TTL backends, resets expiry.
	Touch(ctx context.Context, id string, at time.Time, ttl time.Duration) error
	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	// SweepExpired removes sessions last accessed before cutoff and returns
	// how many were removed. Backends with native TTL return 0.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
