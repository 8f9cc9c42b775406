// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"net/http"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
)

// SubmitSignal handles POST /api/v1/signals.
//
// A duplicate or late signal is still 200; the receipt status says which.
// An overloaded session answers 429 with Retry-After.
//
// @Summary Submit a detection signal
// @Tags signals
// @Accept json
// @Produce json
// @Param request body ingress.SubmitRequest true "Signal"
// @Success 200 {object} APIResponse{data=models.Receipt}
// @Failure 400 {object} APIResponse "Invalid confidence, clock skew or malformed signal"
// @Failure 404 {object} APIResponse "Unknown or inactive session"
// @Failure 429 {object} APIResponse "Session ingress overloaded"
// @Security BearerAuth
// @Router /api/v1/signals [post]
func (h *Handler) SubmitSignal(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectSignal, authz.ActionSubmit) {
		return
	}

	// The gateway validates, so rejections are counted with the rest.
	var req ingress.SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	receipt, err := h.signals.Submit(r.Context(), req)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	WriteSuccess(w, r, receipt)
}
