// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import "time"

// Severity of an incident. Ordered low < medium < high.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns the ordinal of s; unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// Valid reports whether s is low, medium or high.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the higher of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// IncidentStatus is the review status of an incident.
type IncidentStatus string

const (
	IncidentNew           IncidentStatus = "new"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentAcknowledged  IncidentStatus = "acknowledged"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentDismissed     IncidentStatus = "dismissed"
)

// IsTerminal reports whether the status can no longer change.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentResolved || s == IncidentDismissed
}

// Valid reports whether s is a known status.
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentNew, IncidentInvestigating, IncidentAcknowledged, IncidentResolved, IncidentDismissed:
		return true
	}
	return false
}

// CanTransition reports whether status may move from s to next. Movement is
// forward only, except that investigating and acknowledged may oscillate.
func (s IncidentStatus) CanTransition(next IncidentStatus) bool {
	switch s {
	case IncidentNew:
		return next == IncidentInvestigating || next == IncidentAcknowledged ||
			next == IncidentResolved || next == IncidentDismissed
	case IncidentInvestigating:
		return next == IncidentAcknowledged || next == IncidentResolved || next == IncidentDismissed
	case IncidentAcknowledged:
		return next == IncidentInvestigating || next == IncidentResolved || next == IncidentDismissed
	}
	return false
}

// SeverityChange is one entry of an incident's append-only severity history.
type SeverityChange struct {
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Incident is the unit of human review.
//
// Severity never decreases. SignalIDs is ordered and append-only.
// CollectUntil is the event time up to which new signals may still join;
// once the watermark passes it the incident is Settled.
type Incident struct {
	ID              string           `json:"incident_id"`
	SessionID       string           `json:"session_id"`
	Category        ChannelGroup     `json:"category"`
	Channels        []Channel        `json:"channels"`
	Severity        Severity         `json:"severity"`
	Status          IncidentStatus   `json:"status"`
	FirstSeen       time.Time        `json:"first_seen"`
	LastSeen        time.Time        `json:"last_seen"`
	SignalIDs       []string         `json:"signal_ids"`
	MaxConfidence   float64          `json:"max_confidence"`
	Settled         bool             `json:"settled"`
	CollectUntil    time.Time        `json:"collect_until"`
	SeverityHistory []SeverityChange `json:"severity_history"`
	ResolvedBy      string           `json:"resolved_by,omitempty"`
	ResolutionNote  string           `json:"resolution_note,omitempty"`
	Version         uint64           `json:"version"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HasChannel reports whether c has contributed to the incident.
func (i *Incident) HasChannel(c Channel) bool {
	for _, ch := range i.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (i *Incident) Clone() *Incident {
	c := *i
	c.Channels = append([]Channel(nil), i.Channels...)
	c.SignalIDs = append([]string(nil), i.SignalIDs...)
	c.SeverityHistory = append([]SeverityChange(nil), i.SeverityHistory...)
	return &c
}
