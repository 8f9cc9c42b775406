// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// gatedPublisher holds back the session.scheduled event of one session
// until release is called.
type gatedPublisher struct {
	recorder
	sessionID string
	entered   chan struct{}
	open      chan struct{}
	enterOnce sync.Once
	openOnce  sync.Once
}

func newGatedPublisher(sessionID string) *gatedPublisher {
	return &gatedPublisher{sessionID: sessionID, entered: make(chan struct{}), open: make(chan struct{})}
}

func (g *gatedPublisher) Publish(ctx context.Context, events ...models.Event) error {
	for _, e := range events {
		if e.Type == models.EventSessionScheduled && e.SessionID == g.sessionID {
			g.enterOnce.Do(func() { close(g.entered) })
			select {
			case <-g.open:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return g.recorder.Publish(ctx, events...)
}

func (g *gatedPublisher) release() {
	g.openOnce.Do(func() { close(g.open) })
}

func TestScheduleDoesNotBlockOtherSessions(t *testing.T) {
	gate := newGatedPublisher("NEW")
	t.Cleanup(gate.release)
	h := newHarness(t, nil, WithPublisher(gate))
	h.activeSession(t, "A")

	ctx := context.Background()
	req := models.ScheduleRequest{
		SessionID:         "NEW",
		StudentID:         "stu-2",
		ExamID:            "exam-1",
		ScheduledDuration: time.Hour,
		ProctorIDs:        []string{"p1"},
	}
	scheduled := make(chan error, 1)
	go func() {
		_, err := h.eng.Schedule(ctx, req, admin)
		scheduled <- err
	}()
	<-gate.entered

	done := make(chan models.CommandResult, 1)
	go func() {
		done <- h.eng.Command(ctx, models.Command{Type: models.CommandPause, SessionID: "A", Actor: admin})
	}()
	select {
	case res := <-done:
		if !res.Accepted() {
			t.Fatalf("pause A rejected: %s", res.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("command on session A waited for Schedule(NEW) to publish")
	}

	if got := len(h.eng.Sessions()); got != 1 {
		t.Errorf("live sessions = %d while NEW is still being scheduled, want 1", got)
	}
	if _, err := h.eng.Schedule(ctx, req, admin); !errors.Is(err, models.ErrDuplicateSession) {
		t.Errorf("concurrent Schedule(NEW) err = %v, want duplicate_session", err)
	}

	gate.release()
	if err := <-scheduled; err != nil {
		t.Fatalf("Schedule(NEW): %v", err)
	}
	s, err := h.eng.Session(ctx, "NEW")
	if err != nil || s.State != models.SessionScheduled {
		t.Errorf("Session(NEW) = (%+v, %v)", s, err)
	}
	if _, err := h.eng.Schedule(ctx, req, admin); !errors.Is(err, models.ErrDuplicateSession) {
		t.Errorf("Schedule(NEW) after admission err = %v, want duplicate_session", err)
	}
}

// startFanout runs a hub as the engine's publisher until the test ends.
func startFanout(t *testing.T) *fanout.Hub {
	t.Helper()
	cfg := fanout.DefaultConfig()
	cfg.SubscriberBuffer = 4096
	cfg.LogRetention = 10000
	hub := fanout.NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// readAll pages through everything the subscription has been sent.
func readAll(t *testing.T, hub *fanout.Hub, subID string, cursor uint64) []models.Event {
	t.Helper()
	var out []models.Event
	for {
		page, err := hub.Events(subID, cursor, 100)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		out = append(out, page.Events...)
		cursor = page.Cursor
		if len(page.Events) == 0 {
			return out
		}
	}
}

func TestConcurrentSessionsKeepPerEntityOrder(t *testing.T) {
	hub := startFanout(t)
	h := newHarness(t, nil, WithPublisher(hub))
	ctx := context.Background()

	sub, err := hub.Subscribe(admin, models.SubscriptionFilter{}, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ids := []string{"C0", "C1", "C2", "C3", "C4", "C5"}
	run := func(fn func(id string)) {
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				fn(id)
			}(id)
		}
		wg.Wait()
	}

	run(func(id string) {
		_, err := h.eng.Schedule(ctx, models.ScheduleRequest{
			SessionID: id, StudentID: "stu-1", ExamID: "exam-1",
			ScheduledDuration: 2 * time.Hour, ProctorIDs: []string{"p1"},
		}, admin)
		if err != nil {
			t.Errorf("Schedule(%s): %v", id, err)
			return
		}
		if res := h.eng.Command(ctx, models.Command{Type: models.CommandActivate, SessionID: id, Actor: proctor}); !res.Accepted() {
			t.Errorf("activate %s: %s", id, res.Reason)
		}
	})

	run(func(id string) {
		for i, conf := range []float64{0.5, 0.6, 0.95} {
			_, err := h.eng.SubmitSignal(ctx, models.Signal{
				ID: fmt.Sprintf("%s-v%d", id, i), SessionID: id, Channel: models.ChannelVideo,
				Confidence: conf, DetectedAt: t0, ReceivedAt: t0,
			})
			if err != nil {
				t.Errorf("SubmitSignal(%s): %v", id, err)
			}
			if err := h.eng.Tick(ctx); err != nil {
				t.Errorf("Tick: %v", err)
			}
		}
	})

	h.clock.Set(t0.Add(10 * time.Second))
	run(func(id string) {
		if err := h.eng.Tick(ctx); err != nil {
			t.Errorf("Tick: %v", err)
		}
		incidents, err := h.eng.Incidents(ctx, id)
		if err != nil || len(incidents) == 0 {
			t.Errorf("Incidents(%s) = (%d, %v)", id, len(incidents), err)
			return
		}
		for _, inc := range incidents {
			res := h.eng.UpdateIncident(ctx, models.IncidentUpdate{
				SessionID: id, IncidentID: inc.ID, Status: models.IncidentResolved, Actor: proctor,
			})
			if !res.Accepted() {
				t.Errorf("resolve %s/%s: %s", id, inc.ID, res.Reason)
			}
		}
	})

	if err := hub.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	events := readAll(t, hub, sub.ID, sub.Cursor)

	lastSeq := make(map[string]uint64)
	created := make(map[string]int)
	resolved := make(map[string]int)
	for i, e := range events {
		if prev, ok := lastSeq[e.EntityID]; ok && e.Sequence <= prev {
			t.Errorf("%s %s: sequence %d after %d", e.Type, e.EntityID, e.Sequence, prev)
		}
		lastSeq[e.EntityID] = e.Sequence
		switch e.Type {
		case models.EventIncidentCreated:
			created[e.EntityID] = i
		case models.EventIncidentResolved:
			resolved[e.EntityID] = i
		}
	}
	if len(resolved) < len(ids) {
		t.Fatalf("resolved incidents = %d, want at least %d", len(resolved), len(ids))
	}
	for id, at := range resolved {
		c, ok := created[id]
		if !ok || c > at {
			t.Errorf("incident %s resolved at %d before its creation (%d, seen %v)", id, at, c, ok)
		}
	}
}

func TestSubmitRacingMediumBurstNeverRecommendsAfterwards(t *testing.T) {
	ctx := context.Background()
	for k := 0; k <= 4; k++ {
		t.Run(fmt.Sprintf("after_%d_steps", k), func(t *testing.T) {
			h := newHarness(t, nil)
			h.activeSession(t, "S")

			progress := make(chan struct{}, 4)
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				defer close(progress)
				for i := 0; i < 4; i++ {
					at := t0.Add(time.Duration(i*20) * time.Second)
					h.clock.Set(at)
					// Signals after submission are refused; that is expected.
					h.eng.SubmitSignal(ctx, models.Signal{
						ID: fmt.Sprintf("m%d", i), SessionID: "S", Channel: models.ChannelAudio,
						Confidence: 0.7, DetectedAt: at, ReceivedAt: at,
					})
					h.clock.Set(at.Add(6 * time.Second))
					if err := h.eng.Tick(ctx); err != nil {
						t.Errorf("Tick: %v", err)
					}
					progress <- struct{}{}
				}
			}()
			go func() {
				defer wg.Done()
				for i := 0; i < k; i++ {
					if _, ok := <-progress; !ok {
						break
					}
				}
				res := h.eng.Command(ctx, models.Command{Type: models.CommandSubmit, SessionID: "S", Actor: student})
				if !res.Accepted() {
					t.Errorf("submit rejected: %s", res.Reason)
				}
			}()
			wg.Wait()

			submitted := false
			for _, typ := range h.pub.types("S") {
				switch typ {
				case models.EventSessionSubmitted:
					submitted = true
				case models.EventSessionTerminationRecommended:
					if submitted {
						t.Fatalf("termination recommended after submission: %v", h.pub.types("S"))
					}
				}
			}
			if !submitted {
				t.Fatal("session.submitted was never published")
			}
			s, _ := h.eng.Session(ctx, "S")
			if s.State != models.SessionSubmitted {
				t.Errorf("state = %s, want submitted", s.State)
			}
		})
	}
}
