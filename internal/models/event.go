// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

// EventType names a fan-out event. The prefix before the dot is the entity kind.
type EventType string

const (
	EventSessionScheduled              EventType = "session.scheduled"
	EventSessionActivated              EventType = "session.activated"
	EventSessionPaused                 EventType = "session.paused"
	EventSessionResumed                EventType = "session.resumed"
	EventSessionTerminated             EventType = "session.terminated"
	EventSessionSubmitted              EventType = "session.submitted"
	EventSessionWarned                 EventType = "session.warned"
	EventSessionTerminationRequested   EventType = "session.termination_requested"
	EventSessionTerminationRecommended EventType = "session.termination_recommended"

	EventIncidentCreated       EventType = "incident.created"
	EventIncidentUpdated       EventType = "incident.updated"
	EventIncidentSettled       EventType = "incident.settled"
	EventIncidentInvestigating EventType = "incident.investigating"
	EventIncidentAcknowledged  EventType = "incident.acknowledged"
	EventIncidentResolved      EventType = "incident.resolved"
	EventIncidentDismissed     EventType = "incident.dismissed"

	EventEscalationFlag   EventType = "escalation.flag"
	EventEscalationNotify EventType = "escalation.notify"
	EventEscalationDigest EventType = "escalation.digest"
)

// Kind returns the entity kind: session, incident or escalation.
func (t EventType) Kind() string {
	if i := strings.IndexByte(string(t), '.'); i > 0 {
		return string(t)[:i]
	}
	return string(t)
}

// IsSession reports whether t describes a session state change.
func (t EventType) IsSession() bool { return t.Kind() == "session" }

// Event is a versioned record delivered through the subscription stream.
//
// Consumers upsert by (EntityID, Sequence); Sequence is the entity version.
// Offset is the hub-wide cursor position and is assigned on publish.
type Event struct {
	Type       EventType       `json:"type"`
	EntityID   string          `json:"entity_id"`
	Sequence   uint64          `json:"sequence"`
	SessionID  string          `json:"session_id"`
	Severity   Severity        `json:"severity,omitempty"`
	Offset     uint64          `json:"offset"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with payload marshaled to JSON. A payload that
// fails to marshal is logged and the event is sent without one.
func NewEvent(t EventType, entityID, sessionID string, seq uint64, sev Severity, at time.Time, payload interface{}) Event {
	e := Event{
		Type:       t,
		EntityID:   entityID,
		Sequence:   seq,
		SessionID:  sessionID,
		Severity:   sev,
		OccurredAt: at,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			logging.Error().
				Err(err).
				Str("event_type", string(t)).
				Str("entity_id", entityID).
				Str("session_id", sessionID).
				Msg("failed to marshal event payload")
		} else {
			e.Payload = raw
		}
	}
	return e
}

// SubscriptionFilter narrows what a subscriber receives. An empty
// SessionIDs set means every session the role may see.
type SubscriptionFilter struct {
	SessionIDs    []string `json:"session_ids,omitempty"`
	SeverityFloor Severity `json:"severity_floor,omitempty"`
}

// Subscription is a live viewer's feed cursor.
type Subscription struct {
	ID        string             `json:"subscription_id"`
	ActorID   string             `json:"actor_id"`
	Role      Role               `json:"role"`
	Filter    SubscriptionFilter `json:"filter"`
	Cursor    uint64             `json:"cursor"`
	Pending   int                `json:"pending"`
	Stalled   bool               `json:"stalled"`
	CreatedAt time.Time          `json:"created_at"`
}

// EventPage is one poll result.
type EventPage struct {
	Events []Event `json:"events"`
	Cursor uint64  `json:"cursor"`

	// Truncated is true when more events were ready than the page limit.
	Truncated bool `json:"truncated"`
}
