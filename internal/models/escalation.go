// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import "time"

// EscalationAction is the outcome of a policy evaluation.
type EscalationAction string

const (
	ActionNone               EscalationAction = "none"
	ActionFlag               EscalationAction = "flag"
	ActionNotify             EscalationAction = "notify"
	ActionRecommendTerminate EscalationAction = "recommend-terminate"
)

// Delivery says how a decision reaches proctors.
type Delivery string

const (
	DeliveryNone     Delivery = ""
	DeliveryRealtime Delivery = "realtime"
	DeliveryDigest   Delivery = "digest"
)

// EscalationDecision records one policy evaluation. It is written to the
// audit log whether or not it produced a visible notification.
type EscalationDecision struct {
	ID            string           `json:"decision_id"`
	IncidentID    string           `json:"incident_id"`
	SessionID     string           `json:"session_id"`
	ExamID        string           `json:"exam_id,omitempty"`
	Action        EscalationAction `json:"action"`
	Delivery      Delivery         `json:"delivery,omitempty"`
	Severity      Severity         `json:"severity"`
	PolicyVersion string           `json:"policy_version"`
	Reason        string           `json:"reason"`
	DecidedAt     time.Time        `json:"decided_at"`

	// Applied is false when a re-check of current state suppressed the action.
	Applied bool `json:"applied"`
}
