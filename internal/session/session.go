// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package session implements the authoritative exam-session state machine.
//
// A Session wraps the durable models.SessionRecord and is owned by exactly
// one worker; none of its methods lock. Every accepted mutation bumps the
// session version and appends one ordered entry to the audit trail. Any
// state transition atomically invalidates a pending termination handle.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Session is the mutable state of one exam session.
type Session struct {
	rec models.SessionRecord
}

// New admits a session in the scheduled state.
func New(req models.ScheduleRequest, actor models.Actor, now time.Time) (*Session, models.AuditEntry) {
	s := &Session{rec: models.SessionRecord{
		Session: models.ExamSession{
			ID:                req.SessionID,
			StudentID:         req.StudentID,
			ExamID:            req.ExamID,
			ScheduledDuration: req.ScheduledDuration,
			State:             models.SessionScheduled,
			LastStateChange:   now,
			ProctorIDs:        append([]string(nil), req.ProctorIDs...),
			CreatedAt:         now,
		},
	}}
	entry := s.appendEntry(models.AuditScheduled, "", models.SessionScheduled, actor, "", now)
	return s, entry
}

// Restore rebuilds a session from its durable record.
func Restore(rec models.SessionRecord) *Session {
	return &Session{rec: cloneRecord(rec)}
}

// Record returns a deep copy of the durable record.
func (s *Session) Record() models.SessionRecord {
	return cloneRecord(s.rec)
}

// View returns a copy of the session attributes.
func (s *Session) View() models.ExamSession {
	v := s.rec.Session
	v.ProctorIDs = append([]string(nil), s.rec.Session.ProctorIDs...)
	return v
}

// State returns the current state.
func (s *Session) State() models.SessionState { return s.rec.Session.State }

// Trail returns a copy of the audit trail.
func (s *Session) Trail() []models.AuditEntry {
	return append([]models.AuditEntry(nil), s.rec.Trail...)
}

// NextSequence assigns the next per-session ingress sequence number.
func (s *Session) NextSequence() uint64 {
	s.rec.IngressSequence++
	return s.rec.IngressSequence
}

// TerminalAt returns when the session reached a terminal state.
func (s *Session) TerminalAt() time.Time { return s.rec.TerminalAt }

// PendingTermination returns the outstanding confirmation handle, if any.
func (s *Session) PendingTermination() *models.TerminationHandle {
	if s.rec.Termination == nil {
		return nil
	}
	h := *s.rec.Termination
	return &h
}

// Activate performs admission: scheduled -> active.
func (s *Session) Activate(actor models.Actor, now time.Time) (models.AuditEntry, error) {
	if s.State() != models.SessionScheduled {
		return models.AuditEntry{}, s.invalid(models.SessionActive)
	}
	return s.transition(models.SessionActive, actor, "", now)
}

// Pause moves active -> paused.
func (s *Session) Pause(actor models.Actor, now time.Time) (models.AuditEntry, error) {
	return s.transition(models.SessionPaused, actor, "", now)
}

// Resume moves paused -> active.
func (s *Session) Resume(actor models.Actor, now time.Time) (models.AuditEntry, error) {
	if s.State() != models.SessionPaused {
		return models.AuditEntry{}, s.invalid(models.SessionActive)
	}
	return s.transition(models.SessionActive, actor, "", now)
}

// Submit moves active -> submitted.
func (s *Session) Submit(actor models.Actor, message string, now time.Time) (models.AuditEntry, error) {
	return s.transition(models.SessionSubmitted, actor, message, now)
}

// Warn records a warning. State is unchanged; the session must be live.
func (s *Session) Warn(actor models.Actor, message string, now time.Time) (models.AuditEntry, error) {
	if !s.live() {
		return models.AuditEntry{}, models.Errorf(models.ErrInvalidTransition, "cannot warn a %s session", s.State())
	}
	s.accrue(now)
	return s.appendEntry(models.AuditWarned, "", "", actor, message, now), nil
}

// RecommendTermination records a policy recommendation. It never changes
// state; a live session is required so a stale recommendation is refused.
func (s *Session) RecommendTermination(reason string, now time.Time) (models.AuditEntry, error) {
	if !s.live() {
		return models.AuditEntry{}, models.Errorf(models.ErrInvalidTransition, "session is %s", s.State())
	}
	return s.appendEntry(models.AuditTerminationRecommend, "", "", models.SystemActor, reason, now), nil
}

// RequestTermination issues a confirmation handle valid for ttl. A newer
// request replaces an outstanding handle.
func (s *Session) RequestTermination(actor models.Actor, ttl time.Duration, now time.Time) (*models.TerminationHandle, models.AuditEntry, error) {
	if !s.live() {
		return nil, models.AuditEntry{}, s.invalid(models.SessionTerminated)
	}

	h := &models.TerminationHandle{
		ID:          uuid.New().String(),
		SessionID:   s.rec.Session.ID,
		RequestedBy: actor.ID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	s.rec.Termination = h
	entry := s.appendEntry(models.AuditTerminationRequested, "", "", actor, "", now)

	out := *h
	return &out, entry, nil
}

// ConfirmTermination performs the termination authorized by handleID.
//
// A terminal session rejects with InvalidTransition. An unknown or
// invalidated handle rejects with TerminationHandleInvalid. An expired
// handle rejects with ConfirmationExpired. None of these change state.
func (s *Session) ConfirmTermination(actor models.Actor, handleID string, now time.Time) (models.AuditEntry, error) {
	if s.State().IsTerminal() {
		return models.AuditEntry{}, s.invalid(models.SessionTerminated)
	}

	h := s.rec.Termination
	if h == nil || handleID == "" || h.ID != handleID {
		return models.AuditEntry{}, models.Errorf(models.ErrTerminationHandleInvalid, "no pending termination with handle %q", handleID)
	}
	if now.After(h.ExpiresAt) {
		return models.AuditEntry{}, models.Errorf(models.ErrConfirmationExpired, "handle expired at %s", h.ExpiresAt.Format(time.RFC3339))
	}

	return s.transition(models.SessionTerminated, actor, "", now)
}

// Tick advances elapsed time. When an active session reaches its scheduled
// duration it is submitted by the system and the entry is returned.
func (s *Session) Tick(now time.Time) (*models.AuditEntry, error) {
	if s.State() != models.SessionActive {
		return nil, nil
	}
	s.accrue(now)

	d := s.rec.Session.ScheduledDuration
	if d <= 0 || s.rec.Session.Elapsed < d {
		return nil, nil
	}
	entry, err := s.transition(models.SessionSubmitted, models.SystemActor, "time_expired", now)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Session) live() bool {
	st := s.State()
	return st == models.SessionActive || st == models.SessionPaused
}

func (s *Session) invalid(to models.SessionState) error {
	return models.Errorf(models.ErrInvalidTransition, "%s -> %s not permitted", s.State(), to)
}

// transition applies from -> to under the table, invalidating any pending
// termination handle.
func (s *Session) transition(to models.SessionState, actor models.Actor, message string, now time.Time) (models.AuditEntry, error) {
	from := s.State()
	if !CanTransition(from, to) {
		return models.AuditEntry{}, s.invalid(to)
	}

	s.accrue(now)
	s.rec.ActiveSince = time.Time{}
	if to == models.SessionActive {
		s.rec.ActiveSince = now
	}
	if to.IsTerminal() {
		s.rec.TerminalAt = now
	}

	s.rec.Termination = nil
	s.rec.Session.State = to
	s.rec.Session.LastStateChange = now

	return s.appendEntry(auditActionFor(from, to), from, to, actor, message, now), nil
}

// accrue adds active wall time to Elapsed.
func (s *Session) accrue(now time.Time) {
	if s.State() != models.SessionActive || s.rec.ActiveSince.IsZero() {
		return
	}
	if d := now.Sub(s.rec.ActiveSince); d > 0 {
		s.rec.Session.Elapsed += d
		s.rec.ActiveSince = now
	}
}

func (s *Session) appendEntry(action models.AuditAction, from, to models.SessionState, actor models.Actor, message string, now time.Time) models.AuditEntry {
	s.rec.Session.Version++
	entry := models.AuditEntry{
		Seq:       uint64(len(s.rec.Trail) + 1),
		Action:    action,
		From:      from,
		To:        to,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Message:   message,
		At:        now,
	}
	s.rec.Trail = append(s.rec.Trail, entry)
	return entry
}

func cloneRecord(rec models.SessionRecord) models.SessionRecord {
	out := rec
	out.Session.ProctorIDs = append([]string(nil), rec.Session.ProctorIDs...)
	out.Trail = append([]models.AuditEntry(nil), rec.Trail...)
	if rec.Termination != nil {
		h := *rec.Termination
		out.Termination = &h
	}
	return out
}
