package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options selects and configures a backend.
type Options struct {
	Kind         string // memory, redis or sqlite
	RedisURL     string
	RedisTimeout time.Duration
	SQLitePath   string
}

// OpenBackend constructs the configured backend and verifies it responds.
// Any failure logs a warning and falls back to memory. Sessions that only
// exist in an unreachable external backend are not recovered.
func OpenBackend(ctx context.Context, opts Options, logger *slog.Logger) Backend {
	if opts.Kind == "" || opts.Kind == BackendMemory {
		return NewMemoryBackend()
	}

	b, err := openExternal(ctx, opts, logger)
	if err != nil {
		logger.Warn("session backend unavailable, falling back to memory",
			"backend", opts.Kind, "error", err)
		return NewMemoryBackend()
	}
	logger.Info("session backend ready", "backend", b.Name())
	return b
}

func openExternal(ctx context.Context, opts Options, logger *slog.Logger) (Backend, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}

	var b Backend
	switch opts.Kind {
	case BackendRedis:
		b, err = NewRedisBackend(RedisConfig{URL: opts.RedisURL, Timeout: opts.RedisTimeout}, codec, logger)
	case BackendSQLite:
		b, err = OpenSQLiteBackend(ctx, opts.SQLitePath, codec, logger)
	default:
		err = fmt.Errorf("unknown session backend %q", opts.Kind)
	}
	if err != nil {
		codec.Close()
		return nil, err
	}

	pingCtx := ctx
	if opts.RedisTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.RedisTimeout)
		defer cancel()
	}
	if err := b.Ping(pingCtx); err != nil {
		_ = b.Close()
		codec.Close()
		return nil, err
	}
	return b, nil
}
