// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package audit

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

var proctor = models.Actor{ID: "p1", Role: models.RoleProctor}

func TestLogDecisionRecordsEveryAction(t *testing.T) {
	store := NewMemoryStore(100)
	l := NewLogger(store, nil)

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	l.LogDecision(ctx, models.EscalationDecision{
		ID: "d1", IncidentID: "i1", SessionID: "S", Action: models.ActionNotify,
		Severity: models.SeverityHigh, Reason: "high_severity", DecidedAt: t0, Applied: true,
	})
	l.LogDecision(ctx, models.EscalationDecision{
		ID: "d2", IncidentID: "i1", SessionID: "S", Action: models.ActionNone,
		Severity: models.SeverityHigh, Reason: "no_escalation", DecidedAt: t0.Add(time.Second),
	})
	l.Close()

	if store.Len() != 2 {
		t.Fatalf("stored %d events, want 2 (none decisions are audited too)", store.Len())
	}
	got, err := store.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != EventTypeDecision || got.Severity != SeverityWarning || got.Outcome != OutcomeSuccess {
		t.Errorf("decision event = %+v", got)
	}
	if got.Target == nil || got.Target.SessionID != "S" || got.CorrelationID != "corr-1" || !got.Timestamp.Equal(t0) {
		t.Errorf("decision event target/correlation/timestamp = %+v", got)
	}

	none, _ := store.Get(context.Background(), "d2")
	if none.Outcome != OutcomeFailure || none.Severity != SeverityDebug {
		t.Errorf("none decision = %+v", none)
	}
}

func TestLogCommandOutcome(t *testing.T) {
	store := NewMemoryStore(100)
	l := NewLogger(store, nil)

	r := httptest.NewRequest("POST", "/api/v1/sessions/S/commands", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.7")
	src := SourceFromRequest(r)

	cmd := models.Command{Type: models.CommandPause, SessionID: "S", Actor: proctor}
	l.LogCommand(context.Background(), cmd, models.CommandResult{Status: models.CommandAccepted}, src)
	l.LogCommand(context.Background(), cmd, models.Rejected(models.ErrInvalidTransition), src)
	l.Close()

	failed, _ := store.Query(context.Background(), QueryFilter{Outcomes: []Outcome{OutcomeFailure}})
	if len(failed) != 1 || failed[0].Reason != "invalid_transition" {
		t.Fatalf("rejected commands = %+v", failed)
	}
	if failed[0].Source.IPAddress != "10.0.0.7" || failed[0].Actor.Role != "proctor" {
		t.Errorf("source/actor = %+v / %+v", failed[0].Source, failed[0].Actor)
	}
	n, _ := store.Count(context.Background(), QueryFilter{SessionID: "S", Types: []EventType{EventTypeCommand}})
	if n != 2 {
		t.Errorf("commands for S = %d, want 2", n)
	}
}

func TestLoggerLevelAndDisable(t *testing.T) {
	store := NewMemoryStore(100)
	cfg := DefaultConfig()
	cfg.LogLevel = SeverityInfo
	l := NewLogger(store, cfg)

	l.LogDecision(context.Background(), models.EscalationDecision{ID: "quiet", Action: models.ActionNone, DecidedAt: t0})
	l.SetEnabled(false)
	l.LogAuthzDenied(context.Background(), proctor, Source{}, "sessions", "schedule")
	l.Close()

	if store.Len() != 0 {
		t.Errorf("stored %d events, want 0", store.Len())
	}
}

func TestLogNeverBlocksOnFullBuffer(t *testing.T) {
	l := &Logger{config: &Config{Enabled: true, BufferSize: 1}, eventChan: make(chan *Event, 1), stopChan: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			l.Log(&Event{Type: EventTypeCommand, Severity: SeverityInfo})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
}

func TestMemoryStoreQueryAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	for i := 0; i < 4; i++ {
		s.Save(ctx, &Event{ID: string(rune('a' + i)), Timestamp: t0.Add(time.Duration(i) * time.Minute)})
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want capped at 3", s.Len())
	}

	got, _ := s.Query(ctx, QueryFilter{Limit: 2})
	if len(got) != 2 || got[0].ID != "d" || got[1].ID != "c" {
		t.Errorf("Query = %+v, want newest first", got)
	}

	n, _ := s.Delete(ctx, t0.Add(3*time.Minute))
	if n != 2 || s.Len() != 1 {
		t.Errorf("Delete removed %d, left %d", n, s.Len())
	}
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Get(deleted) err = %v", err)
	}
}
