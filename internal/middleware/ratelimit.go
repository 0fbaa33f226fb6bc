package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

// RateLimitConfig configures the token-bucket limiter guarding every API route.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate (tokens added per second).
	RequestsPerSecond float64
	// Burst is the bucket size.
	Burst int
	// OnReject, if set, is called for each rejected request.
	OnReject func(r *http.Request)
}

type clientLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (c *clientLimiter) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *clientLimiter) idleSince(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen.Before(cutoff)
}

// RateLimiter returns per-client token-bucket middleware. Idle client
// buckets are evicted in the background until ctx is done.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	var clients sync.Map // map[string]*clientLimiter

	go func() {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				cutoff := now.Add(-limiterIdleTTL)
				clients.Range(func(key, value any) bool {
					if value.(*clientLimiter).idleSince(cutoff) {
						clients.Delete(key)
					}
					return true
				})
			}
		}
	}()

	limiterFor := func(ip string) *rate.Limiter {
		now := time.Now()
		v, loaded := clients.LoadOrStore(ip, &clientLimiter{
			limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			lastSeen: now,
		})
		cl := v.(*clientLimiter)
		if loaded {
			cl.touch(now)
		}
		return cl.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := limiterFor(ClientIP(r))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				reject(w, r, cfg, time.Second)
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				reject(w, r, cfg, delay)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, cfg RateLimitConfig, retryAfter time.Duration) {
	if cfg.OnReject != nil {
		cfg.OnReject(r)
	}
	writeTooManyRequests(w, retryAfter)
}
