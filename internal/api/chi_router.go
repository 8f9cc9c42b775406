// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/docs"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/auth"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/middleware"
)

// Router binds handlers to routes.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil chi middleware config uses defaults.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, chiConfig *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		auth:          authMiddleware,
		chiMiddleware: NewChiMiddleware(chiConfig),
	}
}

// SetupChi returns the HTTP handler serving every route.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	// Probes and scrapes are unauthenticated.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/health", router.handler.Health)
		r.Get("/health/live", router.handler.HealthLive)
		r.Get("/health/ready", router.handler.HealthReady)
		r.Handle("/metrics", promhttp.Handler())
	})

	// API reference UI. No security headers: the page runs inline scripts.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
			httpSwagger.DeepLinking(true),
			httpSwagger.DocExpansion("list"),
			httpSwagger.DomID("swagger-ui"),
		))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.auth.Authenticate)
		r.Use(router.chiMiddleware.RateLimit()) // keyed by actor, so after auth

		r.Post("/signals", router.handler.SubmitSignal)
		r.Get("/stats", router.handler.Stats)
		r.Get("/audit", router.handler.AuditEvents)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", router.handler.ScheduleSession)
			r.Get("/", router.handler.ListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", router.handler.GetSession)
				r.Get("/incidents", router.handler.SessionIncidents)
				r.Get("/decisions", router.handler.SessionDecisions)
				r.Get("/audit", router.handler.SessionTrail)
				r.Post("/commands", router.handler.SessionCommand)
				r.Post("/incidents/{incident_id}/status", router.handler.IncidentStatus)
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", router.handler.Subscribe)
			r.Get("/{id}/events", router.handler.SubscriptionEvents)
			r.Get("/{id}/stream", router.handler.SubscriptionStream)
			r.Delete("/{id}", router.handler.Unsubscribe)
		})
	})

	return r
}
