// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// SessionReader is the read side of the session engine.
type SessionReader interface {
	Session(ctx context.Context, sessionID string) (models.ExamSession, error)
	Sessions() []models.ExamSession
	Trail(ctx context.Context, sessionID string) ([]models.AuditEntry, error)
	Incidents(ctx context.Context, sessionID string) ([]models.Incident, error)
	Decisions(ctx context.Context, sessionID string) ([]models.EscalationDecision, error)
	Stats() models.SessionStats
}

// Controller is Session Control: every mutation goes through it.
type Controller interface {
	Execute(ctx context.Context, cmd models.Command, src audit.Source) models.CommandResult
	Schedule(ctx context.Context, req models.ScheduleRequest, actor models.Actor, src audit.Source) (models.ExamSession, error)
	UpdateIncident(ctx context.Context, upd models.IncidentUpdate, src audit.Source) models.CommandResult
	Authorize(ctx context.Context, actor models.Actor, object, action string, src audit.Source) error
}

// SignalGateway is Signal Ingress.
type SignalGateway interface {
	Submit(ctx context.Context, req ingress.SubmitRequest) (models.Receipt, error)
}

// AuditQuerier reads the audit log.
type AuditQuerier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HandlerConfig tunes the handlers.
type HandlerConfig struct {
	// AllowedOrigins is checked on websocket upgrades. "*" allows any.
	AllowedOrigins []string

	// DefaultPageSize and MaxPageSize bound subscription event polls.
	DefaultPageSize int
	MaxPageSize     int

	// Version is reported by /health.
	Version string
}

// DefaultHandlerConfig returns the handler defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		DefaultPageSize: 100,
		MaxPageSize:     1000,
		Version:         "dev",
	}
}

// Handler holds the dependencies of every endpoint.
//
// Methods are split by resource:
//   - handlers_signals.go: signal submission
//   - handlers_sessions.go: scheduling, reads, commands and incident status
//   - handlers_subscriptions.go: subscriptions, polling and the push stream
//   - handlers_health.go: health probes and stats
//   - handlers_audit.go: audit log queries
type Handler struct {
	cfg       HandlerConfig
	sessions  SessionReader
	control   Controller
	signals   SignalGateway
	hub       *fanout.Hub
	audit     AuditQuerier
	ready     map[string]ReadinessCheck
	startTime time.Time
}

// NewHandler creates the API handler. audit may be nil, which disables the
// audit query endpoint.
func NewHandler(cfg HandlerConfig, sessions SessionReader, control Controller, signals SignalGateway, hub *fanout.Hub, auditLog AuditQuerier) *Handler {
	def := DefaultHandlerConfig()
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = def.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = def.MaxPageSize
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	return &Handler{
		cfg:       cfg,
		sessions:  sessions,
		control:   control,
		signals:   signals,
		hub:       hub,
		audit:     auditLog,
		ready:     make(map[string]ReadinessCheck),
		startTime: time.Now(),
	}
}

// AddReadinessCheck registers a dependency consulted by /health/ready.
// Call during startup only.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.ready[name] = check
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows requests without Origin, which are not from
// browsers and authenticate with a bearer token, and browser requests from
// an allowed origin.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
