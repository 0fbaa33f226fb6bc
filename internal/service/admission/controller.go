// Package admission implements per-client sliding-window admission control
// for the upload path.
package admission

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds the admission thresholds.
type Config struct {
	// MaxRequests is the number of admitted requests allowed per window.
	MaxRequests int
	// Window is the trailing interval the limit applies to.
	Window time.Duration
}

// clientWindow holds one client's admitted timestamps, oldest first.
type clientWindow struct {
	mu    sync.Mutex
	times []time.Time
	// dead is set when Sweep has dropped the window from the client map.
	dead bool
}

// evict drops timestamps at or before cutoff. Caller holds mu.
func (w *clientWindow) evict(cutoff time.Time) {
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// Controller admits or rejects requests per client id. Distinct clients never
// contend on the same lock; check-and-record for one client is atomic.
type Controller struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*clientWindow
}

// New creates a Controller.
func New(cfg Config, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
		clients: make(map[string]*clientWindow),
	}
}

// SetClock overrides the time source. Intended for tests.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// RetryAfter is the hint returned to rejected callers.
func (c *Controller) RetryAfter() time.Duration {
	return c.cfg.Window
}

// Limit returns the configured request limit per window.
func (c *Controller) Limit() int {
	return c.cfg.MaxRequests
}

// Allow reports whether clientID may proceed, recording the admission if so.
func (c *Controller) Allow(clientID string) bool {
	w := c.window(clientID)
	w.mu.Lock()
	for w.dead {
		w.mu.Unlock()
		w = c.window(clientID)
		w.mu.Lock()
	}
	defer w.mu.Unlock()

	now := c.now()
	w.evict(now.Add(-c.cfg.Window))
	if len(w.times) >= c.cfg.MaxRequests {
		c.logger.Warn("rate limit exceeded", "client", clientID, "limit", c.cfg.MaxRequests)
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Remaining returns how many more requests clientID may make in the current window.
func (c *Controller) Remaining(clientID string) int {
	c.mu.Lock()
	w, ok := c.clients[clientID]
	c.mu.Unlock()
	if !ok {
		return c.cfg.MaxRequests
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(c.now().Add(-c.cfg.Window))
	if n := c.cfg.MaxRequests - len(w.times); n > 0 {
		return n
	}
	return 0
}

// Sweep evicts stale timestamps from every client and forgets clients whose
// window became empty. It returns the number of clients removed.
func (c *Controller) Sweep() int {
	cutoff := c.now().Add(-c.cfg.Window)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, w := range c.clients {
		w.mu.Lock()
		w.evict(cutoff)
		empty := len(w.times) == 0
		if empty {
			w.dead = true
		}
		w.mu.Unlock()
		if empty {
			delete(c.clients, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("admission sweep", "clients_removed", removed)
	}
	return removed
}

// Clients returns the number of tracked clients.
func (c *Controller) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// window returns the client's window, creating it on first use.
func (c *Controller) window(clientID string) *clientWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.clients[clientID]
	if !ok {
		w = &clientWindow{}
		c.clients[clientID] = w
	}
	return w
}
