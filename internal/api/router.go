package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"propdash/internal/middleware"
)

// RouterConfig carries the cross-cutting pieces mounted around the handlers.
// Nil middlewares are skipped.
type RouterConfig struct {
	CORSOrigins   []string
	APILimiter    func(http.Handler) http.Handler
	UploadGate    func(http.Handler) http.Handler
	UploadTimeout time.Duration
	Metrics       http.Handler
}

// NewRouter mounts h on a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if len(cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.CORSOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				ExposedHeaders: []string{"Content-Disposition", "Retry-After", "X-Request-ID"},
				MaxAge:         300,
			}))
		}
		use(r, cfg.APILimiter)

		r.Group(func(r chi.Router) {
			use(r, cfg.UploadGate)
			if cfg.UploadTimeout > 0 {
				r.Use(chimw.Timeout(cfg.UploadTimeout))
			}
			r.Post("/upload", h.Upload)
		})
		r.Post("/data", h.Data)
		r.Post("/export", h.Export)
		r.Get("/session/{id}", h.GetSession)
		r.Delete("/session/{id}", h.DeleteSession)
	})
	return r
}

func use(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}
