// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/incident"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// SessionEventPayload is the payload of every session.* event.
type SessionEventPayload struct {
	Session models.ExamSession `json:"session"`
	Entry   models.AuditEntry  `json:"entry"`

	// ConfirmBy is set on termination_requested; the handle itself is only
	// returned to the requester.
	ConfirmBy *time.Time `json:"confirm_by,omitempty"`
}

// DigestPayload is the payload of an escalation.digest event.
type DigestPayload struct {
	Decisions []models.EscalationDecision `json:"decisions"`
	FlushedAt time.Time                   `json:"flushed_at"`
}

func sessionEvent(view models.ExamSession, entry models.AuditEntry, handle *models.TerminationHandle) models.Event {
	payload := SessionEventPayload{Session: view, Entry: entry}
	if handle != nil {
		exp := handle.ExpiresAt
		payload.ConfirmBy = &exp
	}
	return models.NewEvent(
		models.EventType("session."+string(entry.Action)),
		view.ID, view.ID, view.Version, models.SeverityNone, entry.At, payload,
	)
}

func incidentEvent(change incident.Change, at time.Time) models.Event {
	inc := change.Incident
	var t models.EventType
	switch change.Kind {
	case incident.ChangeCreated:
		t = models.EventIncidentCreated
	case incident.ChangeSettled:
		t = models.EventIncidentSettled
	case incident.ChangeStatus:
		t = models.EventType("incident." + string(inc.Status))
	default:
		t = models.EventIncidentUpdated
	}
	return models.NewEvent(t, inc.ID, inc.SessionID, inc.Version, inc.Severity, at, inc)
}

func decisionEvent(d models.EscalationDecision) models.Event {
	t := models.EventEscalationFlag
	if d.Action == models.ActionNotify {
		t = models.EventEscalationNotify
	}
	return models.NewEvent(t, d.ID, d.SessionID, 1, d.Severity, d.DecidedAt, d)
}

// digestEntityID names one flush. It is derived from the session and flush
// time so a replay after restart carries the same (entity_id, sequence).
func digestEntityID(sessionID string, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"\x00"+at.UTC().Format(time.RFC3339Nano))).String()
}

func digestEvent(sessionID string, items []models.EscalationDecision, at time.Time) models.Event {
	return models.NewEvent(models.EventEscalationDigest, digestEntityID(sessionID, at), sessionID, 1, models.SeverityLow, at,
		DigestPayload{Decisions: items, FlushedAt: at})
}
