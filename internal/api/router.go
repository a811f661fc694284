// PumpMatch - Device Recommendation Engine
// Copyright 2026 Clinicore Health
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/pumpmatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicore/pumpmatch/internal/config"
	"github.com/clinicore/pumpmatch/internal/middleware"
)

// NewRouter assembles the HTTP routes and middleware chain.
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health/live", h.handleLive)
	r.Get("/health/ready", h.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
		}

		r.Post("/recommend", h.handleRecommend)
		r.Get("/devices", h.handleDevices)
		r.Get("/personas", h.handlePersonas)
		r.Get("/stats", h.handleStats)
		r.Delete("/cache", h.handleClearCache)
	})

	return r
}
