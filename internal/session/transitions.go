// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package session

import "github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"

// transitions is the fixed transition table. Terminal states have no entry.
var transitions = map[models.SessionState][]models.SessionState{
	models.SessionScheduled: {models.SessionActive},
	models.SessionActive:    {models.SessionPaused, models.SessionTerminated, models.SessionSubmitted},
	models.SessionPaused:    {models.SessionActive, models.SessionTerminated},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to models.SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// auditActionFor names the trail entry written for a transition into to.
func auditActionFor(from, to models.SessionState) models.AuditAction {
	switch to {
	case models.SessionActive:
		if from == models.SessionPaused {
			return models.AuditResumed
		}
		return models.AuditActivated
	case models.SessionPaused:
		return models.AuditPaused
	case models.SessionTerminated:
		return models.AuditTerminated
	case models.SessionSubmitted:
		return models.AuditSubmitted
	}
	return models.AuditScheduled
}

// CheckActor enforces per-session ownership on top of role authorization:
// proctors must be assigned to the session and students may only act on
// their own session.
func CheckActor(s *models.ExamSession, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleProctor:
		if s.HasProctor(actor.ID) {
			return nil
		}
		return models.Errorf(models.ErrNotAuthorized, "proctor %s is not assigned to session %s", actor.ID, s.ID)
	case models.RoleStudent:
		if s.StudentID == actor.ID {
			return nil
		}
		return models.Errorf(models.ErrNotAuthorized, "session %s belongs to another student", s.ID)
	}
	return models.Errorf(models.ErrNotAuthorized, "role %q may not act on sessions", actor.Role)
}
