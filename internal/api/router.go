// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the chi route tree.
//
// Layout:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/snapshots
//	GET  /api/v1/snapshots/{topic}
//	GET  /api/v1/stream
//	POST /api/v1/admin/invalidate   (rate limited per IP)
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshots", h.GetSnapshots)
		r.Get("/snapshots/{topic}", h.GetSnapshot)
		r.Get("/stream", h.Stream)

		r.Route("/admin", func(r chi.Router) {
			r.Use(httprate.Limit(
				h.cfg.Server.AdminRateLimit,
				h.cfg.Server.AdminRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					NewResponseWriter(w, r).TooManyRequests("admin rate limit exceeded")
				}),
			))
			r.Post("/invalidate", h.Invalidate)
		})
	})

	return r
}

// topicParam extracts the {topic} route parameter.
func topicParam(r *http.Request) string {
	return chi.URLParam(r, "topic")
}
