// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newBadger(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newBadger(t)

	events := []*Event{
		{ID: "e1", Timestamp: t0, Type: EventTypeCommand, Outcome: OutcomeSuccess, Target: &Target{Type: "session", ID: "S", SessionID: "S"}},
		{ID: "e2", Timestamp: t0.Add(time.Minute), Type: EventTypeDecision, Outcome: OutcomeSuccess, Target: &Target{Type: "incident", ID: "i1", SessionID: "S"}},
		{ID: "e3", Timestamp: t0.Add(2 * time.Minute), Type: EventTypeCommand, Outcome: OutcomeFailure, Target: &Target{Type: "session", ID: "T", SessionID: "T"}},
	}
	for _, e := range events {
		if err := s.Save(ctx, e); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.Get(ctx, "e2")
	if err != nil || got.Type != EventTypeDecision {
		t.Fatalf("Get = (%+v, %v)", got, err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Get(missing) err = %v", err)
	}

	all, _ := s.Query(ctx, QueryFilter{})
	if len(all) != 3 || all[0].ID != "e3" || all[2].ID != "e1" {
		t.Errorf("Query order = %v, want newest first", ids(all))
	}
	forS, _ := s.Query(ctx, QueryFilter{SessionID: "S", Limit: 1})
	if len(forS) != 1 || forS[0].ID != "e2" {
		t.Errorf("Query(session S, limit 1) = %v", ids(forS))
	}
	if n, _ := s.Count(ctx, QueryFilter{Types: []EventType{EventTypeCommand}}); n != 2 {
		t.Errorf("Count(commands) = %d, want 2", n)
	}
}

func TestBadgerStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newBadger(t)
	for i, id := range []string{"old1", "old2", "new"} {
		s.Save(ctx, &Event{ID: id, Timestamp: t0.Add(time.Duration(i) * time.Hour)})
	}

	n, err := s.Delete(ctx, t0.Add(90*time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("Delete = (%d, %v), want 2", n, err)
	}
	if _, err := s.Get(ctx, "old1"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("deleted event still reachable by id: %v", err)
	}
	left, _ := s.Query(ctx, QueryFilter{})
	if len(left) != 1 || left[0].ID != "new" {
		t.Errorf("remaining = %v", ids(left))
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i := range events {
		out[i] = events[i].ID
	}
	return out
}
