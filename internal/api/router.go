package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agenciageraleads/summi-worker/internal/api/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(h *Handler, internalToken string, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Metrics first so every request is counted
	r.Use(middleware.Metrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.InternalTokenHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Post("/webhooks/evolution", h.EvolutionWebhook)
	r.Post("/webhooks/evolution-analyze", h.EvolutionWebhookAnalyze)
	r.Post("/api/analyze-messages", h.AnalyzeMessages)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireInternalToken(internalToken))
		r.Post("/internal/run-hourly", h.RunHourly)
	})

	return r
}
