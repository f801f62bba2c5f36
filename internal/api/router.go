// Package api assembles the chi router: middleware chain, rate limiters and
// route table. Wiring the concrete handlers/services is cmd/api's job.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vidsum-dev/vidsum/internal/api/handler"
	"github.com/vidsum-dev/vidsum/internal/api/middleware"
	"github.com/vidsum-dev/vidsum/internal/ratelimit"
)

// Handlers bundles every handler the router dispatches to.
type Handlers struct {
	Health  *handler.HealthHandler
	Upload  *handler.UploadHandler
	Cache   *handler.CacheHandler
	Summary *handler.SummaryHandler
	Job     *handler.JobHandler
}

// RateLimiters bundles the sliding-window limiters guarding the two
// write-heavy, expensive endpoints.
type RateLimiters struct {
	Upload  *ratelimit.SlidingWindow
	Summary *ratelimit.SlidingWindow
}

// NewRouter builds the full HTTP surface.
func NewRouter(h Handlers, limiters RateLimiters, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Api-Key"},
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(limiters.Upload)).Post("/uploads", h.Upload.Create)

		r.Post("/cache/lookup", h.Cache.Lookup)
		r.Get("/cache/{cache_key}", h.Cache.Get)
		r.Delete("/cache/{cache_key}", h.Cache.Delete)

		r.With(middleware.RateLimit(limiters.Summary)).Post("/summaries", h.Summary.Create)

		r.Get("/jobs/{job_id}", h.Job.Get)
	})

	return r
}
