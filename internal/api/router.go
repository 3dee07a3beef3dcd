// Reelfeed - Hybrid Movie Recommendation Engine
// Copyright 2026 Reelfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelfeed/reelfeed

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reelfeed/reelfeed/internal/config"
)

// NewRouter builds the Chi router for the API.
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100
	}
	rateWindow := cfg.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rateLimit, rateWindow))
		r.Use(prometheusMetrics)

		r.Put("/ratings", h.PutRating)
		r.Delete("/ratings", h.DeleteRating)
		r.Get("/ratings", h.ListRatings)
		r.Post("/feedback", h.PostFeedback)

		r.Get("/recommendations", h.GetRecommendations)

		r.Get("/movies/{movieID}", h.GetMovie)
		r.Get("/movies/{movieID}/similar", h.GetSimilarMovies)
		r.Get("/search", h.SearchMovies)

		r.Get("/users/{userID}/preferences", h.GetUserPreferences)
		r.Get("/users/{userID}/export", h.ExportUser)

		r.Get("/analytics", h.GetAnalytics)

		r.Get("/system/status", h.SystemStatus)
		r.Post("/system/retrain", h.SystemRetrain)
		r.Get("/system/performance", h.SystemPerformance)
	})

	return r
}
