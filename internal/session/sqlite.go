package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internaldb "propdash/internal/db"
	"propdash/internal/domain"
)

// SQLiteBackend persists sessions as one row each in a local SQLite file so
// they survive a process restart. SQLite has no TTL; SweepExpired deletes by
// last access time.
type SQLiteBackend struct {
	writeDB *sql.DB
	readDB  *sql.DB
	codec   *Codec
	logger  *slog.Logger
}

var _ domain.SessionRepository = (*SQLiteBackend)(nil)

// OpenSQLiteBackend opens (creating if needed) the database at path and
// applies migrations.
func OpenSQLiteBackend(ctx context.Context, path string, codec *Codec, logger *slog.Logger) (*SQLiteBackend, error) {
	writeDB, readDB, err := internaldb.OpenSQLitePair(path, 0)
	if err != nil {
		return nil, err
	}
	if err := internaldb.RunMigrations(ctx, writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, err
	}
	return NewSQLiteBackend(writeDB, readDB, codec, logger), nil
}

// NewSQLiteBackend wraps already-migrated pools.
func NewSQLiteBackend(writeDB, readDB *sql.DB, codec *Codec, logger *slog.Logger) *SQLiteBackend {
	return &SQLiteBackend{writeDB: writeDB, readDB: readDB, codec: codec, logger: logger}
}

func (b *SQLiteBackend) Name() string { return BackendSQLite }

func (b *SQLiteBackend) Put(ctx context.Context, s *domain.Session, _ time.Duration) error {
	payload, err := b.codec.Encode(s)
	if err != nil {
		return err
	}
	cols, err := json.Marshal(s.Table.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = b.writeDB.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_accessed_at, columns_json, metadata_json, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			columns_json = excluded.columns_json,
			metadata_json = excluded.metadata_json,
			payload = excluded.payload`,
		s.ID, s.CreatedAt.UnixNano(), s.LastAccessedAt.UnixNano(), string(cols), string(meta), payload)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) (*domain.Session, error) {
	var payload []byte
	var accessed int64
	err := b.readDB.QueryRowContext(ctx,
		`SELECT payload, last_accessed_at FROM sessions WHERE id = ?`, id).Scan(&payload, &accessed)
	if errors.Is(err, sql.ErrNoRows) {
		b.logger.Debug("session not found", "session_id", id)
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	s, err := b.codec.Decode(payload)
	if err != nil {
		b.logger.Error("session payload corrupt", "session_id", id, "error", err)
		return nil, err
	}
	s.LastAccessedAt = fromNanos(accessed)
	return s, nil
}

func (b *SQLiteBackend) Info(ctx context.Context, id string) (*domain.SessionInfo, error) {
	var created, accessed int64
	var cols, meta string
	err := b.readDB.QueryRowContext(ctx, `
		SELECT created_at, last_accessed_at, columns_json, metadata_json
		FROM sessions WHERE id = ?`, id).Scan(&created, &accessed, &cols, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session info: %w", err)
	}

	info := &domain.SessionInfo{ID: id, CreatedAt: fromNanos(created), LastAccessedAt: fromNanos(accessed)}
	if err := json.Unmarshal([]byte(cols), &info.Columns); err != nil {
		return nil, fmt.Errorf("%w: columns: %v", domain.ErrSessionCorrupt, err)
	}
	if err := json.Unmarshal([]byte(meta), &info.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", domain.ErrSessionCorrupt, err)
	}
	return info, nil
}

func (b *SQLiteBackend) Touch(ctx context.Context, id string, at time.Time, _ time.Duration) error {
	res, err := b.writeDB.ExecContext(ctx,
		`UPDATE sessions SET last_accessed_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.writeDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.writeDB.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_accessed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(n), nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.readDB.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	return errors.Join(b.readDB.Close(), b.writeDB.Close())
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }
