// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package escalation decides what to do about an incident change.
//
// Evaluate is a pure function of the incident, the session state and the
// session's recent medium-severity history under a per-exam Policy. It never
// terminates a session; the strongest action is recommend-terminate, which
// still needs the two-step human confirmation.
package escalation

import (
	"sync"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Policy is the configurable policy table for one exam.
type Policy struct {
	Version           string        `koanf:"policy_version"`
	MediumBurstCount  int           `koanf:"medium_burst_count"`
	MediumBurstWindow time.Duration `koanf:"medium_burst_window"`
	DigestInterval    time.Duration `koanf:"digest_interval"`
}

// DefaultPolicy returns the stock policy table.
func DefaultPolicy() Policy {
	return Policy{
		Version:           "2026.10.1",
		MediumBurstCount:  3,
		MediumBurstWindow: 10 * time.Minute,
		DigestInterval:    time.Minute,
	}
}

// Book resolves the policy for an exam, falling back to the default.
type Book struct {
	mu    sync.RWMutex
	def   Policy
	exams map[string]Policy
}

// NewBook creates a book. Zero fields of an override inherit the default.
func NewBook(def Policy, overrides map[string]Policy) *Book {
	b := &Book{def: def, exams: make(map[string]Policy, len(overrides))}
	for exam, p := range overrides {
		b.exams[exam] = merge(def, p)
	}
	return b
}

// For returns the policy that applies to examID.
func (b *Book) For(examID string) Policy {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.exams[examID]; ok {
		return p
	}
	return b.def
}

// Set installs or replaces an exam override.
func (b *Book) Set(examID string, p Policy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exams[examID] = merge(b.def, p)
}

func merge(def, p Policy) Policy {
	if p.Version == "" {
		p.Version = def.Version
	}
	if p.MediumBurstCount <= 0 {
		p.MediumBurstCount = def.MediumBurstCount
	}
	if p.MediumBurstWindow <= 0 {
		p.MediumBurstWindow = def.MediumBurstWindow
	}
	if p.DigestInterval <= 0 {
		p.DigestInterval = def.DigestInterval
	}
	return p
}

// Input is everything a policy evaluation may look at.
type Input struct {
	Incident         models.Incident
	PreviousSeverity models.Severity
	Created          bool
	SessionState     models.SessionState

	// RecentMedium counts the session's crossings into medium within the
	// burst window, this one included.
	RecentMedium int

	// RecommendedRecently is true if termination was already recommended
	// for the session within the burst window.
	RecommendedRecently bool

	Now time.Time
}

// Decision reasons.
const (
	ReasonSessionTerminal  = "session_terminal"
	ReasonIncidentClosed   = "incident_closed"
	ReasonHighSeverity     = "high_severity_new"
	ReasonMediumBurst      = "medium_burst"
	ReasonMediumSeverity   = "medium_severity"
	ReasonLowSeverity      = "low_severity"
	ReasonNoEscalation     = "no_escalation"
	ReasonStateChanged     = "session_state_changed"
	ReasonAlreadyEscalated = "already_recommended"
)

// Evaluate applies the policy table to one incident change. The returned
// decision has no ID and is not yet applied.
func Evaluate(p Policy, in Input) models.EscalationDecision {
	d := models.EscalationDecision{
		IncidentID:    in.Incident.ID,
		SessionID:     in.Incident.SessionID,
		Severity:      in.Incident.Severity,
		PolicyVersion: p.Version,
		DecidedAt:     in.Now,
		Action:        models.ActionNone,
	}

	sev := in.Incident.Severity
	switch {
	case in.SessionState.IsTerminal():
		d.Reason = ReasonSessionTerminal

	case in.Incident.Status.IsTerminal():
		d.Reason = ReasonIncidentClosed

	case sev == models.SeverityHigh && in.Incident.Status == models.IncidentNew && in.PreviousSeverity != models.SeverityHigh:
		d.Action = models.ActionNotify
		d.Delivery = models.DeliveryRealtime
		d.Reason = ReasonHighSeverity

	case CrossedIntoMedium(in.PreviousSeverity, sev):
		d.Delivery = models.DeliveryRealtime
		switch {
		case in.RecentMedium >= p.MediumBurstCount && !in.RecommendedRecently:
			d.Action = models.ActionRecommendTerminate
			d.Reason = ReasonMediumBurst
		case in.RecentMedium >= p.MediumBurstCount:
			d.Action = models.ActionFlag
			d.Reason = ReasonAlreadyEscalated
		default:
			d.Action = models.ActionFlag
			d.Reason = ReasonMediumSeverity
		}

	case sev == models.SeverityLow && in.Created:
		d.Action = models.ActionFlag
		d.Delivery = models.DeliveryDigest
		d.Reason = ReasonLowSeverity

	default:
		d.Reason = ReasonNoEscalation
	}

	return d
}

// CrossedIntoMedium reports whether severity just became medium.
func CrossedIntoMedium(prev, cur models.Severity) bool {
	return cur == models.SeverityMedium && prev.Rank() < models.SeverityMedium.Rank()
}

// Recheck re-validates a recommend-terminate decision against the current
// session state immediately before it is acted on. A decision that no
// longer fits is downgraded to none.
func Recheck(d models.EscalationDecision, current models.SessionState) models.EscalationDecision {
	if d.Action != models.ActionRecommendTerminate {
		return d
	}
	if current == models.SessionActive || current == models.SessionPaused {
		return d
	}
	d.Action = models.ActionNone
	d.Delivery = models.DeliveryNone
	d.Reason = ReasonStateChanged
	return d
}
