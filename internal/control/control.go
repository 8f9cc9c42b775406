// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package control is the Session Control surface: every command a human or
// the presentation layer issues against a session or incident passes
// through here.
//
// A request is first checked against the role policy, then executed
// synchronously by the session's worker, then audited. Results are never
// errors: a refused command is a rejected CommandResult with a reason.
package control

import (
	"context"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Engine executes commands on session workers.
type Engine interface {
	Schedule(ctx context.Context, req models.ScheduleRequest, actor models.Actor) (models.ExamSession, error)
	Command(ctx context.Context, cmd models.Command) models.CommandResult
	UpdateIncident(ctx context.Context, upd models.IncidentUpdate) models.CommandResult
}

// Authorizer decides whether a caller's role permits an action.
type Authorizer interface {
	Authorize(actor models.Actor, object, action string) error
}

// Auditor records control actions.
type Auditor interface {
	LogCommand(ctx context.Context, cmd models.Command, res models.CommandResult, src audit.Source)
	LogSchedule(ctx context.Context, req models.ScheduleRequest, actor models.Actor, err error, src audit.Source)
	LogIncidentUpdate(ctx context.Context, upd models.IncidentUpdate, res models.CommandResult, src audit.Source)
	LogAuthzDenied(ctx context.Context, actor models.Actor, src audit.Source, resource, action string)
}

// Service authorizes, executes and audits Session Control requests.
type Service struct {
	engine  Engine
	authz   Authorizer
	auditor Auditor
}

// New creates a Service. auditor may be nil.
func New(engine Engine, authorizer Authorizer, auditor Auditor) *Service {
	return &Service{engine: engine, authz: authorizer, auditor: auditor}
}

// Execute runs a session command for cmd.Actor.
func (s *Service) Execute(ctx context.Context, cmd models.Command, src audit.Source) models.CommandResult {
	if !cmd.Type.Valid() {
		res := models.Rejected(models.Errorf(models.ErrMalformedRequest, "unknown command %q", cmd.Type))
		s.finishCommand(ctx, cmd, res, src)
		return res
	}
	if err := s.authz.Authorize(cmd.Actor, authz.ObjectSession, string(cmd.Type)); err != nil {
		s.denied(ctx, cmd.Actor, src, "session "+cmd.SessionID, string(cmd.Type))
		res := models.Rejected(err)
		metrics.RecordCommand(string(cmd.Type), false)
		return res
	}

	res := s.engine.Command(ctx, cmd)
	s.finishCommand(ctx, cmd, res, src)
	return res
}

func (s *Service) finishCommand(ctx context.Context, cmd models.Command, res models.CommandResult, src audit.Source) {
	metrics.RecordCommand(string(cmd.Type), res.Accepted())
	if s.auditor != nil {
		s.auditor.LogCommand(ctx, cmd, res, src)
	}

	log := logging.Ctx(ctx)
	if res.Accepted() {
		ev := log.Info().
			Str("session_id", cmd.SessionID).
			Str("command", string(cmd.Type)).
			Str("actor_id", cmd.Actor.ID)
		if res.Session != nil {
			ev = ev.Str("state", string(res.Session.State))
		}
		ev.Msg("Command accepted")
		return
	}
	log.Debug().
		Str("session_id", cmd.SessionID).
		Str("command", string(cmd.Type)).
		Str("actor_id", cmd.Actor.ID).
		Str("reason", res.Reason).
		Msg("Command rejected")
}

// Schedule admits a new session.
func (s *Service) Schedule(ctx context.Context, req models.ScheduleRequest, actor models.Actor, src audit.Source) (models.ExamSession, error) {
	if err := s.authz.Authorize(actor, authz.ObjectSession, authz.ActionSchedule); err != nil {
		s.denied(ctx, actor, src, "session "+req.SessionID, authz.ActionSchedule)
		return models.ExamSession{}, err
	}

	sess, err := s.engine.Schedule(ctx, req, actor)
	if s.auditor != nil {
		s.auditor.LogSchedule(ctx, req, actor, err, src)
	}
	if err != nil {
		logging.Ctx(ctx).Debug().
			Str("session_id", req.SessionID).
			Str("reason", models.ReasonOf(err)).
			Msg("Schedule rejected")
	}
	return sess, err
}

// UpdateIncident applies a human review status to an incident.
func (s *Service) UpdateIncident(ctx context.Context, upd models.IncidentUpdate, src audit.Source) models.CommandResult {
	if err := s.authz.Authorize(upd.Actor, authz.ObjectIncident, authz.ActionUpdate); err != nil {
		s.denied(ctx, upd.Actor, src, "incident "+upd.IncidentID, authz.ActionUpdate)
		return models.Rejected(err)
	}
	if !upd.Status.Valid() {
		res := models.Rejected(models.Errorf(models.ErrMalformedRequest, "unknown incident status %q", upd.Status))
		if s.auditor != nil {
			s.auditor.LogIncidentUpdate(ctx, upd, res, src)
		}
		return res
	}

	res := s.engine.UpdateIncident(ctx, upd)
	if s.auditor != nil {
		s.auditor.LogIncidentUpdate(ctx, upd, res, src)
	}
	logging.Ctx(ctx).Debug().
		Str("session_id", upd.SessionID).
		Str("incident_id", upd.IncidentID).
		Str("status", string(upd.Status)).
		Str("result", string(res.Status)).
		Str("reason", res.Reason).
		Msg("Incident status update")
	return res
}

// Authorize checks a non-command action, auditing denials.
func (s *Service) Authorize(ctx context.Context, actor models.Actor, object, action string, src audit.Source) error {
	if err := s.authz.Authorize(actor, object, action); err != nil {
		s.denied(ctx, actor, src, object, action)
		return err
	}
	return nil
}

func (s *Service) denied(ctx context.Context, actor models.Actor, src audit.Source, resource, action string) {
	if s.auditor != nil {
		s.auditor.LogAuthzDenied(ctx, actor, src, resource, action)
	}
	logging.Ctx(ctx).Debug().
		Str("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Str("resource", resource).
		Str("action", action).
		Msg("Authorization denied")
}
