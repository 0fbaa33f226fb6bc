package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"propdash/internal/domain"
)

const (
	dataKeyPrefix = "session:"
	infoKeyPrefix = "session_info:"
)

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	URL     string
	Timeout time.Duration // dial, read and write timeout
}

// RedisBackend stores each session under two keys sharing one TTL: the
// compressed payload and a small JSON info record used by Info and Touch.
type RedisBackend struct {
	client *redis.Client
	codec  *Codec
	group  singleflight.Group
	logger *slog.Logger

	onLoad func() // called before each payload fetch; nil outside tests
}

var _ domain.SessionRepository = (*RedisBackend)(nil)

// NewRedisBackend parses cfg.URL and builds a client. It does not dial;
// call Ping to verify reachability.
func NewRedisBackend(cfg RedisConfig, codec *Codec, logger *slog.Logger) (*RedisBackend, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	return &RedisBackend{
		client: redis.NewClient(opts),
		codec:  codec,
		logger: logger,
	}, nil
}

func dataKey(id string) string { return dataKeyPrefix + id }
func infoKey(id string) string { return infoKeyPrefix + id }

func (r *RedisBackend) Name() string { return BackendRedis }

// Put writes payload and info in one MULTI/EXEC so both keys appear together.
func (r *RedisBackend) Put(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	payload, err := r.codec.Encode(s)
	if err != nil {
		return err
	}
	info, err := json.Marshal(s.Info())
	if err != nil {
		return fmt.Errorf("marshal session info: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, dataKey(s.ID), payload, ttl)
	pipe.Set(ctx, infoKey(s.ID), info, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

// Get fetches and decodes the payload. Concurrent Gets for the same id share
// one round-trip and one decode.
func (r *RedisBackend) Get(ctx context.Context, id string) (*domain.Session, error) {
	v, err, _ := r.group.Do(id, func() (any, error) {
		return r.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*domain.Session)
	return &cp, nil
}

func (r *RedisBackend) load(ctx context.Context, id string) (*domain.Session, error) {
	if r.onLoad != nil {
		r.onLoad()
	}
	pipe := r.client.Pipeline()
	dataCmd := pipe.Get(ctx, dataKey(id))
	infoCmd := pipe.Get(ctx, infoKey(id))
	_, _ = pipe.Exec(ctx)

	raw, err := dataCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("session not found", "session_id", id)
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	s, err := r.codec.Decode(raw)
	if err != nil {
		r.logger.Error("session payload corrupt", "session_id", id, "error", err)
		return nil, err
	}

	// The payload is written once; the info key carries the current access time.
	if infoRaw, err := infoCmd.Bytes(); err == nil {
		var info domain.SessionInfo
		if json.Unmarshal(infoRaw, &info) == nil {
			s.LastAccessedAt = info.LastAccessedAt
		}
	}
	return s, nil
}

func (r *RedisBackend) Info(ctx context.Context, id string) (*domain.SessionInfo, error) {
	raw, err := r.client.Get(ctx, infoKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("session info not found", "session_id", id)
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session info: %w", err)
	}
	var info domain.SessionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		r.logger.Error("session info corrupt", "session_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionCorrupt, err)
	}
	return &info, nil
}

// Touch rewrites the info record and resets the TTL on both keys.
func (r *RedisBackend) Touch(ctx context.Context, id string, at time.Time, ttl time.Duration) error {
	info, err := r.Info(ctx, id)
	if err != nil {
		return err
	}
	info.LastAccessedAt = at
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal session info: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, infoKey(id), b, ttl)
	exists := pipe.Exists(ctx, dataKey(id))
	if ttl > 0 {
		pipe.Expire(ctx, dataKey(id), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis touch session: %w", err)
	}
	if exists.Val() == 0 {
		// The payload expired after it was read; drop the info key just written
		// so Info does not outlive the data.
		if err := r.client.Del(ctx, infoKey(id)).Err(); err != nil {
			r.logger.Warn("delete orphaned session info", "session_id", id, "error", err)
		}
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, dataKey(id), infoKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// SweepExpired is a no-op: redis expires keys natively.
func (r *RedisBackend) SweepExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }
