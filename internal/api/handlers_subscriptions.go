// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Subscribe handles POST /api/v1/subscriptions.
//
// @Summary Open an event subscription
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body SubscribeRequest true "Filter and optional resume cursor"
// @Success 201 {object} APIResponse{data=SubscribeResponse}
// @Failure 409 {object} APIResponse "Cursor older than the retained log"
// @Security BearerAuth
// @Router /api/v1/subscriptions [post]
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok || !h.authorize(w, r, actor, authz.ObjectSubscription, authz.ActionCreate) {
		return
	}
	var req SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// A student may only follow sessions they sit.
	if actor.Role == models.RoleStudent {
		for _, id := range req.SessionIDs {
			sess, err := h.sessions.Session(r.Context(), id)
			if err != nil || sess.StudentID != actor.ID {
				respondDomainError(w, r, models.Errorf(models.ErrNotAuthorized, "not a participant of session %s", id))
				return
			}
		}
	}

	sub, err := h.hub.Subscribe(actor, models.SubscriptionFilter{
		SessionIDs:    req.SessionIDs,
		SeverityFloor: models.Severity(req.SeverityFloor),
	}, req.Cursor)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).Created(SubscribeResponse{SubscriptionID: sub.ID, Cursor: sub.Cursor})
}

// ownSubscription loads the subscription in the URL and checks the caller
// owns it. Admins may act on any subscription.
func (h *Handler) ownSubscription(w http.ResponseWriter, r *http.Request) (models.Subscription, models.Actor, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return models.Subscription{}, actor, false
	}
	sub, err := h.hub.Subscription(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return models.Subscription{}, actor, false
	}
	if sub.ActorID != actor.ID && actor.Role != models.RoleAdmin {
		// Indistinguishable from an unknown id.
		respondDomainError(w, r, models.Errorf(models.ErrUnknownSubscription, "subscription %s not found", sub.ID))
		return models.Subscription{}, actor, false
	}
	return sub, actor, true
}

// SubscriptionEvents handles GET /api/v1/subscriptions/{id}/events.
//
// cursor acknowledges everything up to and including that offset and the
// page starts after it. Without cursor the acknowledged cursor is used, so
// an unacknowledged page is served again.
//
// @Summary Poll subscription events
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Param cursor query int false "Acknowledge through this offset"
// @Param limit query int false "Page size"
// @Success 200 {object} APIResponse{data=models.EventPage}
// @Failure 404 {object} APIResponse "Unknown subscription"
// @Failure 408 {object} APIResponse "Subscriber disconnected after stalling"
// @Security BearerAuth
// @Router /api/v1/subscriptions/{id}/events [get]
func (h *Handler) SubscriptionEvents(w http.ResponseWriter, r *http.Request) {
	sub, _, ok := h.ownSubscription(w, r)
	if !ok {
		return
	}
	cursor, set, err := queryUint(r, "cursor")
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if !set {
		cursor = sub.Cursor
	}
	limit, err := queryLimit(r, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	page, err := h.hub.Events(sub.ID, cursor, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if page.Events == nil {
		page.Events = []models.Event{}
	}
	WriteSuccess(w, r, page)
}

// SubscriptionStream handles GET /api/v1/subscriptions/{id}/stream, upgrading
// to a websocket that pushes events and accepts {"type":"ack","cursor":N}.
//
// @Summary Stream subscription events over a websocket
// @Tags subscriptions
// @Param id path string true "Subscription ID"
// @Success 101
// @Failure 404 {object} APIResponse "Unknown subscription"
// @Security BearerAuth
// @Router /api/v1/subscriptions/{id}/stream [get]
func (h *Handler) SubscriptionStream(w http.ResponseWriter, r *http.Request) {
	sub, _, ok := h.ownSubscription(w, r)
	if !ok {
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Str("subscription_id", sub.ID).Msg("WebSocket upgrade failed")
		return
	}

	stream, err := fanout.NewStream(h.hub, conn, sub.ID)
	if err != nil {
		_ = conn.Close()
		return
	}
	stream.Run(r.Context())
}

// Unsubscribe handles DELETE /api/v1/subscriptions/{id}.
//
// @Summary Close a subscription
// @Tags subscriptions
// @Param id path string true "Subscription ID"
// @Success 204
// @Failure 404 {object} APIResponse "Unknown subscription"
// @Security BearerAuth
// @Router /api/v1/subscriptions/{id} [delete]
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, _, ok := h.ownSubscription(w, r)
	if !ok {
		return
	}
	if err := h.hub.Unsubscribe(sub.ID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	NewResponseWriter(w, r).NoContent()
}
