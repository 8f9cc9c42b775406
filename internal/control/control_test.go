// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package control

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/authz"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

var (
	admin   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	proctor = models.Actor{ID: "p1", Role: models.RoleProctor}
	student = models.Actor{ID: "stu-1", Role: models.RoleStudent}
)

// fakeEngine records what reached it.
type fakeEngine struct {
	mu       sync.Mutex
	commands []models.Command
	updates  []models.IncidentUpdate
	schedErr error
	result   models.CommandResult
}

func (f *fakeEngine) Schedule(_ context.Context, req models.ScheduleRequest, _ models.Actor) (models.ExamSession, error) {
	if f.schedErr != nil {
		return models.ExamSession{}, f.schedErr
	}
	return models.ExamSession{ID: req.SessionID, State: models.SessionScheduled}, nil
}

func (f *fakeEngine) Command(_ context.Context, cmd models.Command) models.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.result
}

func (f *fakeEngine) UpdateIncident(_ context.Context, upd models.IncidentUpdate) models.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	return f.result
}

func setup(t *testing.T) (*Service, *fakeEngine, *audit.Logger, *audit.MemoryStore) {
	t.Helper()
	enf, err := authz.NewEnforcer(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enf.Close)

	store := audit.NewMemoryStore(100)
	logger := audit.NewLogger(store, nil)
	eng := &fakeEngine{result: models.CommandResult{Status: models.CommandAccepted}}
	return New(eng, enf, logger), eng, logger, store
}

func TestExecuteAuthorizesBeforeEngine(t *testing.T) {
	svc, eng, logger, store := setup(t)
	ctx := context.Background()

	res := svc.Execute(ctx, models.Command{Type: models.CommandPause, SessionID: "S", Actor: student}, audit.Source{})
	if res.Accepted() || res.Reason != "not_authorized" {
		t.Fatalf("student pause = %+v, want rejected not_authorized", res)
	}
	if len(eng.commands) != 0 {
		t.Fatal("unauthorized command reached the engine")
	}

	res = svc.Execute(ctx, models.Command{Type: models.CommandPause, SessionID: "S", Actor: proctor}, audit.Source{})
	if !res.Accepted() {
		t.Fatalf("proctor pause = %+v", res)
	}
	if len(eng.commands) != 1 || eng.commands[0].Actor != proctor {
		t.Fatalf("engine commands = %+v", eng.commands)
	}
	logger.Close()

	denied, _ := store.Query(ctx, audit.QueryFilter{Types: []audit.EventType{audit.EventTypeAuthzDenied}})
	if len(denied) != 1 || denied[0].Actor.ID != "stu-1" || denied[0].Action != "pause" {
		t.Errorf("authz denials = %+v", denied)
	}
	cmds, _ := store.Query(ctx, audit.QueryFilter{Types: []audit.EventType{audit.EventTypeCommand}})
	if len(cmds) != 1 || cmds[0].Outcome != audit.OutcomeSuccess {
		t.Errorf("command audit = %+v", cmds)
	}
}

func TestExecuteRejectsUnknownCommand(t *testing.T) {
	svc, eng, _, _ := setup(t)

	res := svc.Execute(context.Background(), models.Command{Type: "explode", SessionID: "S", Actor: admin}, audit.Source{})
	if res.Accepted() || res.Reason != "malformed_request" {
		t.Errorf("result = %+v", res)
	}
	if len(eng.commands) != 0 {
		t.Error("unknown command reached the engine")
	}
}

func TestEngineRejectionIsAudited(t *testing.T) {
	svc, eng, logger, store := setup(t)
	eng.result = models.Rejected(models.ErrInvalidTransition)

	res := svc.Execute(context.Background(), models.Command{Type: models.CommandResume, SessionID: "S", Actor: proctor}, audit.Source{IPAddress: "10.1.1.1"})
	if res.Reason != "invalid_transition" {
		t.Fatalf("result = %+v", res)
	}
	logger.Close()

	failed, _ := store.Query(context.Background(), audit.QueryFilter{Outcomes: []audit.Outcome{audit.OutcomeFailure}})
	if len(failed) != 1 || failed[0].Reason != "invalid_transition" || failed[0].Source.IPAddress != "10.1.1.1" {
		t.Errorf("failed audit = %+v", failed)
	}
}

func TestScheduleRequiresAdmin(t *testing.T) {
	svc, _, _, _ := setup(t)
	req := models.ScheduleRequest{SessionID: "S", StudentID: "stu-1", ExamID: "E"}

	if _, err := svc.Schedule(context.Background(), req, proctor, audit.Source{}); !errors.Is(err, models.ErrNotAuthorized) {
		t.Errorf("proctor schedule err = %v", err)
	}
	sess, err := svc.Schedule(context.Background(), req, admin, audit.Source{})
	if err != nil || sess.State != models.SessionScheduled {
		t.Errorf("admin schedule = (%+v, %v)", sess, err)
	}
}

func TestScheduleEngineErrorIsReturnedAndAudited(t *testing.T) {
	svc, eng, logger, store := setup(t)
	eng.schedErr = models.Errorf(models.ErrDuplicateSession, "session S already exists")

	_, err := svc.Schedule(context.Background(), models.ScheduleRequest{SessionID: "S"}, admin, audit.Source{})
	if !errors.Is(err, models.ErrDuplicateSession) {
		t.Fatalf("err = %v", err)
	}
	logger.Close()

	evs, _ := store.Query(context.Background(), audit.QueryFilter{Types: []audit.EventType{audit.EventTypeSessionScheduled}})
	if len(evs) != 1 || evs[0].Reason != "duplicate_session" {
		t.Errorf("schedule audit = %+v", evs)
	}
}

func TestUpdateIncident(t *testing.T) {
	svc, eng, _, _ := setup(t)
	ctx := context.Background()

	upd := models.IncidentUpdate{SessionID: "S", IncidentID: "i1", Status: models.IncidentAcknowledged, Actor: student}
	if res := svc.UpdateIncident(ctx, upd, audit.Source{}); res.Reason != "not_authorized" {
		t.Errorf("student update = %+v", res)
	}

	upd.Actor = proctor
	upd.Status = "burned"
	if res := svc.UpdateIncident(ctx, upd, audit.Source{}); res.Reason != "malformed_request" {
		t.Errorf("bogus status = %+v", res)
	}

	upd.Status = models.IncidentAcknowledged
	if res := svc.UpdateIncident(ctx, upd, audit.Source{}); !res.Accepted() {
		t.Errorf("proctor update = %+v", res)
	}
	if len(eng.updates) != 1 {
		t.Errorf("engine updates = %d, want 1", len(eng.updates))
	}
}

func TestAuthorizeNonCommandAction(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, proctor, authz.ObjectStats, authz.ActionRead, audit.Source{}); err != nil {
		t.Errorf("proctor stats = %v", err)
	}
	if err := svc.Authorize(ctx, student, authz.ObjectAudit, authz.ActionRead, audit.Source{}); !errors.Is(err, models.ErrNotAuthorized) {
		t.Errorf("student audit = %v", err)
	}
}
