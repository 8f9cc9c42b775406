// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
)

// readinessTimeout bounds all readiness checks of one probe.
const readinessTimeout = 2 * time.Second

// HealthStatus is the body of /health.
type HealthStatus struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Uptime      float64           `json:"uptime_seconds"`
	Sessions    int               `json:"live_sessions"`
	Subscribers int               `json:"subscribers"`
	EventHead   uint64            `json:"event_head"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health. It reports degraded, still with 200, when a
// readiness check fails.
//
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} APIResponse{data=HealthStatus}
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runChecks(r.Context())
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	WriteSuccess(w, r, HealthStatus{
		Status:      status,
		Version:     h.cfg.Version,
		Uptime:      time.Since(h.startTime).Seconds(),
		Sessions:    len(h.sessions.Sessions()),
		Subscribers: h.hub.SubscriberCount(),
		EventHead:   h.hub.Head(),
		Checks:      checks,
	})
}

// HealthLive handles GET /health/live. It answers 200 while the process runs.
//
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} APIResponse
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /health/ready: 200 when every check passes,
// otherwise 503.
//
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 503 {object} APIResponse "A dependency is not ready"
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runChecks(r.Context())
	if !healthy {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", checks)
		return
	}
	WriteSuccess(w, r, map[string]interface{}{"ready": true, "checks": checks})
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	if len(h.ready) == 0 {
		return nil, true
	}
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.ready))
	for name := range h.ready {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.ready[name](ctx); err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}

// Stats handles GET /api/v1/stats. Counts come from per-session snapshots
// and are eventually consistent.
//
// @Summary Session and incident counts
// @Tags health
// @Produce json
// @Success 200 {object} APIResponse{data=models.SessionStats}
// @Security BearerAuth
// @Router /api/v1/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectStats, authz.ActionRead) {
		return
	}
	WriteSuccess(w, r, h.sessions.Stats())
}
