// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// maxAuditLimit caps one audit query.
const maxAuditLimit = 1000

// AuditEvents handles GET /api/v1/audit.
//
// Query parameters: type (comma separated), outcome, actor_id, session_id,
// correlation_id, start and end (RFC3339) and limit.
//
// @Summary Query the audit log
// @Tags audit
// @Produce json
// @Param type query string false "Comma separated event types"
// @Param outcome query string false "success or failure"
// @Param actor_id query string false "Actor ID"
// @Param session_id query string false "Session ID"
// @Param correlation_id query string false "Correlation ID"
// @Param start query string false "RFC3339 lower bound"
// @Param end query string false "RFC3339 upper bound"
// @Param limit query int false "Maximum events"
// @Success 200 {object} APIResponse{data=[]audit.Event}
// @Failure 503 {object} APIResponse "Audit logging disabled"
// @Security BearerAuth
// @Router /api/v1/audit [get]
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectAudit, authz.ActionRead) {
		return
	}
	if h.audit == nil {
		NewResponseWriter(w, r).ServiceUnavailable("audit logging is disabled")
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	NewResponseWriter(w, r).SuccessWithPagination(events, &PaginationMeta{
		Count:   len(events),
		Limit:   filter.Limit,
		HasMore: len(events) == filter.Limit,
	})
}

func parseAuditFilter(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	filter := audit.DefaultQueryFilter()

	if raw := q.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, audit.EventType(t))
			}
		}
	}
	switch o := audit.Outcome(q.Get("outcome")); o {
	case "":
	case audit.OutcomeSuccess, audit.OutcomeFailure:
		filter.Outcomes = []audit.Outcome{o}
	default:
		return filter, models.Errorf(models.ErrMalformedRequest, "outcome must be success or failure")
	}
	filter.ActorID = q.Get("actor_id")
	filter.SessionID = q.Get("session_id")
	filter.CorrelationID = q.Get("correlation_id")

	for name, dst := range map[string]**time.Time{"start": &filter.StartTime, "end": &filter.EndTime} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, models.Errorf(models.ErrMalformedRequest, "%s must be an RFC3339 timestamp", name)
		}
		*dst = &t
	}

	limit, err := queryLimit(r, filter.Limit, maxAuditLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}
