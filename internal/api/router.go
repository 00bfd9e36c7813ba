package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/tikgrabba/internal/api/handler"
	mw "github.com/iconidentify/tikgrabba/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	resolveHandler *handler.ResolveHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath) // //ready -> /ready
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey, logger))

		r.Get("/stats", healthHandler.Stats)

		r.Post("/resolve", resolveHandler.Submit)
		r.Get("/jobs/{jobID}", resolveHandler.GetJob)
		r.Get("/history", resolveHandler.History)
		r.Get("/flavors", resolveHandler.Flavors)
	})

	return r
}
