// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// ScheduleSession handles POST /api/v1/sessions.
//
// @Summary Schedule an exam session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body ScheduleSessionRequest true "Session to schedule"
// @Success 201 {object} APIResponse{data=models.ExamSession}
// @Failure 400 {object} APIResponse "Malformed request"
// @Failure 403 {object} APIResponse "Not authorized"
// @Failure 409 {object} APIResponse "Session id already used"
// @Security BearerAuth
// @Router /api/v1/sessions [post]
func (h *Handler) ScheduleSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req ScheduleSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sched, err := req.toModel()
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	sess, err := h.control.Schedule(r.Context(), sched, actor, audit.SourceFromRequest(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(sess)
}

// ListSessions handles GET /api/v1/sessions. Students only see their own.
//
// @Summary List live sessions
// @Tags sessions
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.ExamSession}
// @Security BearerAuth
// @Router /api/v1/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectSession, authz.ActionRead) {
		return
	}

	all := h.sessions.Sessions()
	out := all
	if actor.Role == models.RoleStudent {
		out = make([]models.ExamSession, 0, 1)
		for _, s := range all {
			if s.StudentID == actor.ID {
				out = append(out, s)
			}
		}
	}
	NewResponseWriter(w, r).SuccessWithPagination(out, &PaginationMeta{Count: len(out)})
}

// GetSession handles GET /api/v1/sessions/{id}.
//
// @Summary Get one session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} APIResponse{data=models.ExamSession}
// @Failure 404 {object} APIResponse "Unknown session"
// @Security BearerAuth
// @Router /api/v1/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectSession, authz.ActionRead) {
		return
	}

	sess, err := h.sessions.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if actor.Role == models.RoleStudent && sess.StudentID != actor.ID {
		// Same answer as a missing session, so ids cannot be probed.
		respondDomainError(w, r, models.Errorf(models.ErrUnknownSession, "session %s not found", sess.ID))
		return
	}
	WriteSuccess(w, r, sess)
}

// SessionIncidents handles GET /api/v1/sessions/{id}/incidents.
//
// @Summary List a session's incidents
// @Tags incidents
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} APIResponse{data=[]models.Incident}
// @Failure 404 {object} APIResponse "Unknown session"
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/incidents [get]
func (h *Handler) SessionIncidents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectIncident, authz.ActionRead) {
		return
	}
	incidents, err := h.sessions.Incidents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).SuccessWithPagination(incidents, &PaginationMeta{Count: len(incidents)})
}

// SessionDecisions handles GET /api/v1/sessions/{id}/decisions.
//
// @Summary List a session's escalation decisions
// @Tags incidents
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} APIResponse{data=[]models.EscalationDecision}
// @Failure 404 {object} APIResponse "Unknown session"
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/decisions [get]
func (h *Handler) SessionDecisions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectIncident, authz.ActionRead) {
		return
	}
	decisions, err := h.sessions.Decisions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).SuccessWithPagination(decisions, &PaginationMeta{Count: len(decisions)})
}

// SessionTrail handles GET /api/v1/sessions/{id}/audit.
//
// @Summary Get a session's audit trail
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} APIResponse{data=[]models.AuditEntry}
// @Failure 404 {object} APIResponse "Unknown session"
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/audit [get]
func (h *Handler) SessionTrail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectAudit, authz.ActionRead) {
		return
	}
	trail, err := h.sessions.Trail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).SuccessWithPagination(trail, &PaginationMeta{Count: len(trail)})
}

// SessionCommand handles POST /api/v1/sessions/{id}/commands. Authorization
// happens in Session Control so every rejection is audited in one place.
//
// @Summary Execute a session command
// @Description activate, pause, resume, warn, request_termination, confirm_termination or submit.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body CommandRequest true "Command"
// @Success 200 {object} APIResponse{data=models.CommandResult}
// @Failure 403 {object} APIResponse "Not authorized"
// @Failure 409 {object} APIResponse "Invalid transition or handle"
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/commands [post]
func (h *Handler) SessionCommand(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req CommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.control.Execute(r.Context(), models.Command{
		Type:      models.CommandType(req.Type),
		SessionID: chi.URLParam(r, "id"),
		Actor:     actor,
		Handle:    req.Handle,
		Message:   req.Message,
	}, audit.SourceFromRequest(r))
	respondResult(w, r, res)
}

// IncidentStatus handles POST /api/v1/sessions/{id}/incidents/{incident_id}/status.
//
// @Summary Change an incident's status
// @Tags incidents
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param incident_id path string true "Incident ID"
// @Param request body IncidentStatusRequest true "New status"
// @Success 200 {object} APIResponse{data=models.CommandResult}
// @Failure 403 {object} APIResponse "Not authorized"
// @Failure 409 {object} APIResponse "Status transition not permitted"
// @Security BearerAuth
// @Router /api/v1/sessions/{id}/incidents/{incident_id}/status [post]
func (h *Handler) IncidentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req IncidentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.control.UpdateIncident(r.Context(), models.IncidentUpdate{
		SessionID:  chi.URLParam(r, "id"),
		IncidentID: chi.URLParam(r, "incident_id"),
		Status:     models.IncidentStatus(req.Status),
		Note:       req.Note,
		Actor:      actor,
	}, audit.SourceFromRequest(r))
	respondResult(w, r, res)
}
