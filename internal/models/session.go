// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import "time"

// SessionState is the lifecycle state of an exam session.
type SessionState string

const (
	SessionScheduled  SessionState = "scheduled"
	SessionActive     SessionState = "active"
	SessionPaused     SessionState = "paused"
	SessionTerminated SessionState = "terminated"
	SessionSubmitted  SessionState = "submitted"
)

// IsTerminal reports whether no further transition is possible.
func (s SessionState) IsTerminal() bool {
	return s == SessionTerminated || s == SessionSubmitted
}

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	switch s {
	case SessionScheduled, SessionActive, SessionPaused, SessionTerminated, SessionSubmitted:
		return true
	}
	return false
}

// Role is the role of an actor as supplied by the identity service.
// These align with the Casbin policy in internal/authz/policy.csv.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProctor  Role = "proctor"
	RoleStudent  Role = "student"
	RoleDetector Role = "detector"

	// RoleSystem is used for transitions the engine performs itself, such as
	// the automatic submit when the scheduled duration runs out.
	RoleSystem Role = "system"
)

// ValidRoles contains the roles accepted from callers.
var ValidRoles = []Role{RoleAdmin, RoleProctor, RoleStudent, RoleDetector}

// IsValidRole reports whether role may be presented by a caller.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if string(r) == role {
			return true
		}
	}
	return false
}

// Actor identifies who issued a command.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is the actor recorded for engine-initiated transitions.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// ExamSession identifies one student taking one exam instance.
//
// Elapsed only advances while State is active. Version increases on every
// mutation and is the idempotent-upsert key for session events.
type ExamSession struct {
	ID                string        `json:"session_id"`
	StudentID         string        `json:"student_id"`
	ExamID            string        `json:"exam_id"`
	ScheduledDuration time.Duration `json:"scheduled_duration"`
	Elapsed           time.Duration `json:"elapsed"`
	State             SessionState  `json:"state"`
	LastStateChange   time.Time     `json:"last_state_change"`
	ProctorIDs        []string      `json:"proctor_ids"`
	Version           uint64        `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
}

// HasProctor reports whether proctorID is assigned to the session.
func (s *ExamSession) HasProctor(proctorID string) bool {
	for _, id := range s.ProctorIDs {
		if id == proctorID {
			return true
		}
	}
	return false
}

// AuditAction names an entry in a session's audit trail.
type AuditAction string

const (
	AuditScheduled            AuditAction = "scheduled"
	AuditActivated            AuditAction = "activated"
	AuditPaused               AuditAction = "paused"
	AuditResumed              AuditAction = "resumed"
	AuditTerminated           AuditAction = "terminated"
	AuditSubmitted            AuditAction = "submitted"
	AuditWarned               AuditAction = "warned"
	AuditTerminationRequested AuditAction = "termination_requested"
	AuditTerminationRecommend AuditAction = "termination_recommended"
)

// AuditEntry is one ordered record in a session's audit trail.
type AuditEntry struct {
	Seq       uint64       `json:"seq"`
	Action    AuditAction  `json:"action"`
	From      SessionState `json:"from,omitempty"`
	To        SessionState `json:"to,omitempty"`
	ActorID   string       `json:"actor_id"`
	ActorRole Role         `json:"actor_role"`
	Message   string       `json:"message,omitempty"`
	At        time.Time    `json:"at"`
}

// TerminationHandle is the confirmation token returned by a termination
// request. It is single use and expires at ExpiresAt.
type TerminationHandle struct {
	ID          string    `json:"handle"`
	SessionID   string    `json:"session_id"`
	RequestedBy string    `json:"requested_by"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionRecord is the durable form of a session owned by its worker.
type SessionRecord struct {
	Session         ExamSession        `json:"session"`
	Trail           []AuditEntry       `json:"trail"`
	IngressSequence uint64             `json:"ingress_sequence"`
	Termination     *TerminationHandle `json:"termination,omitempty"`

	// ActiveSince is the wall time elapsed accounting last started from.
	// Zero unless the session is active.
	ActiveSince time.Time `json:"active_since,omitempty"`

	// TerminalAt is when the session reached a terminal state; retention
	// is counted from here.
	TerminalAt time.Time `json:"terminal_at,omitempty"`

	// DigestQueue lists digest-delivered decisions not yet flushed.
	// DigestFlushedAt starts the current digest interval.
	DigestQueue     []string  `json:"digest_queue,omitempty"`
	DigestFlushedAt time.Time `json:"digest_flushed_at,omitempty"`
}

// SessionStats is an eventually-consistent cross-session summary.
type SessionStats struct {
	SessionsByState    map[SessionState]int `json:"sessions_by_state"`
	OpenIncidents      map[Severity]int     `json:"open_incidents_by_severity"`
	SignalsAccepted    uint64               `json:"signals_accepted"`
	SignalsDroppedLate uint64               `json:"signals_dropped_late"`
	GeneratedAt        time.Time            `json:"generated_at"`
}
