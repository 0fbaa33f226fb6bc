// Package app provides application-level wiring and dependency injection
// for the property dashboard.
package app

import (
	"context"
	"log/slog"
	"net/http"

	"propdash/internal/api"
	"propdash/internal/config"
	"propdash/internal/metrics"
	"propdash/internal/middleware"
	"propdash/internal/service/admission"
	"propdash/internal/service/dashboard"
	"propdash/internal/service/ingestion"
	"propdash/internal/service/query"
	"propdash/internal/service/sweep"
	"propdash/internal/session"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Handler   http.Handler
	Store     *session.Store
	Admission *admission.Controller // nil when upload rate limiting is disabled
	Scheduler *sweep.Scheduler
	Metrics   *metrics.Metrics
}

// New wires the backend, services and router from the provided deps. ctx
// bounds background goroutines started by middleware.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	m := metrics.New()

	// === Session store ===
	backend := session.OpenBackend(ctx, session.Options{
		Kind:         cfg.SessionBackend,
		RedisURL:     cfg.RedisURL,
		RedisTimeout: cfg.RedisTimeout,
		SQLitePath:   cfg.SQLitePath,
	}, logger.With("component", "session-backend"))
	store := session.NewStore(backend, cfg.SessionTimeout, logger.With("component", "session"))

	// === Core services ===
	normalizer := ingestion.New(cfg.MaxFileSize, logger.With("component", "ingestion"))
	engine := query.NewEngine(logger.With("component", "query"))
	svc := dashboard.New(normalizer, store, engine, m, logger.With("component", "dashboard"))

	// === Rate limiting ===
	var ctrl *admission.Controller
	var uploadGate func(http.Handler) http.Handler
	var clientSweeper sweep.ClientSweeper
	if cfg.RateLimitEnabled {
		ctrl = admission.New(admission.Config{
			MaxRequests: cfg.RateLimitRequests,
			Window:      cfg.RateLimitWindow,
		}, logger.With("component", "admission"))
		uploadGate = middleware.Admission(ctrl, func(*http.Request) {
			m.RateLimited.WithLabelValues(metrics.LimiterAdmission).Inc()
		})
		clientSweeper = ctrl
	}
	apiLimiter := middleware.RateLimiter(ctx, middleware.RateLimitConfig{
		RequestsPerSecond: cfg.APIRateLimitRPS,
		Burst:             cfg.APIRateLimitBurst,
		OnReject: func(*http.Request) {
			m.RateLimited.WithLabelValues(metrics.LimiterAPI).Inc()
		},
	})

	// === HTTP ===
	handler := api.NewHandler(svc, store, cfg.MaxFileSize, logger.With("component", "api"))
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:   cfg.CORSAllowedOrigins,
		APILimiter:    apiLimiter,
		UploadGate:    uploadGate,
		UploadTimeout: cfg.UploadTimeout,
		Metrics:       m.Handler(),
	})

	scheduler := sweep.NewScheduler(store, clientSweeper, m, cfg.SweepInterval, logger.With("component", "sweep"))

	return &App{
		Handler:   router,
		Store:     store,
		Admission: ctrl,
		Scheduler: scheduler,
		Metrics:   m,
	}, nil
}

// Close releases the session backend.
func (a *App) Close() error {
	return a.Store.Close()
}
