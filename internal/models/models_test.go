// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

func TestErrorIsMatchesReason(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrClockSkew, "ahead by %s", 45*time.Second)
	if !errors.Is(err, ErrClockSkew) {
		t.Fatal("detailed error should match its sentinel")
	}
	if errors.Is(err, ErrInvalidConfidence) {
		t.Fatal("different reasons must not match")
	}

	wrapped := fmt.Errorf("submit: %w", err)
	if !errors.Is(wrapped, ErrClockSkew) {
		t.Fatal("wrapped error should still match")
	}
	if got := ReasonOf(wrapped); got != "clock_skew" {
		t.Errorf("ReasonOf = %q, want clock_skew", got)
	}
	if got := err.Error(); got != "clock_skew: ahead by 45s" {
		t.Errorf("Error() = %q", got)
	}
}

func TestAsErrorWrapsForeignErrors(t *testing.T) {
	t.Parallel()

	e := AsError(errors.New("disk full"))
	if e.Kind != KindInternal {
		t.Errorf("Kind = %s, want internal", e.Kind)
	}
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}
}

func TestRejected(t *testing.T) {
	t.Parallel()

	r := Rejected(Errorf(ErrInvalidTransition, "session is terminated"))
	if r.Accepted() {
		t.Fatal("result should be rejected")
	}
	if r.Reason != "invalid_transition" || r.Message != "session is terminated" {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestChannelGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ch   Channel
		want ChannelGroup
	}{
		{ChannelVideo, GroupVisual},
		{ChannelScreen, GroupVisual},
		{ChannelAudio, GroupAudio},
		{ChannelNavigation, GroupNavigation},
	}
	for _, tt := range tests {
		if got := tt.ch.Group(); got != tt.want {
			t.Errorf("%s.Group() = %s, want %s", tt.ch, got, tt.want)
		}
	}
	if Channel("smell").Valid() {
		t.Error("unknown channel reported valid")
	}
}

func TestSeverityOrdering(t *testing.T) {
	t.Parallel()

	if MaxSeverity(SeverityHigh, SeverityLow) != SeverityHigh {
		t.Error("max(high, low) should be high")
	}
	if MaxSeverity(SeverityNone, SeverityMedium) != SeverityMedium {
		t.Error("max(none, medium) should be medium")
	}
	if SeverityNone.Valid() {
		t.Error("empty severity should be invalid")
	}
}

func TestIncidentStatusTransitions(t *testing.T) {
	t.Parallel()

	all := []IncidentStatus{IncidentNew, IncidentInvestigating, IncidentAcknowledged, IncidentResolved, IncidentDismissed}
	allowed := map[IncidentStatus][]IncidentStatus{
		IncidentNew:           {IncidentInvestigating, IncidentAcknowledged, IncidentResolved, IncidentDismissed},
		IncidentInvestigating: {IncidentAcknowledged, IncidentResolved, IncidentDismissed},
		IncidentAcknowledged:  {IncidentInvestigating, IncidentResolved, IncidentDismissed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIncidentCloneIsDeep(t *testing.T) {
	t.Parallel()

	inc := &Incident{ID: "i1", SignalIDs: []string{"a"}, Channels: []Channel{ChannelVideo}}
	c := inc.Clone()
	c.SignalIDs[0] = "b"
	c.Channels = append(c.Channels, ChannelScreen)

	if inc.SignalIDs[0] != "a" || len(inc.Channels) != 1 {
		t.Error("clone shares slices with the original")
	}
}

func TestEventKind(t *testing.T) {
	t.Parallel()

	if EventIncidentResolved.Kind() != "incident" {
		t.Errorf("Kind = %s", EventIncidentResolved.Kind())
	}
	if !EventSessionPaused.IsSession() || EventEscalationDigest.IsSession() {
		t.Error("IsSession misclassified")
	}

	e := NewEvent(EventSessionPaused, "s1", "s1", 3, SeverityNone, time.Unix(0, 0), map[string]string{"state": "paused"})
	if string(e.Payload) != `{"state":"paused"}` {
		t.Errorf("payload = %s", e.Payload)
	}
}

func TestSessionStateHelpers(t *testing.T) {
	t.Parallel()

	if !SessionSubmitted.IsTerminal() || !SessionTerminated.IsTerminal() || SessionPaused.IsTerminal() {
		t.Error("IsTerminal misclassified")
	}
	s := ExamSession{ProctorIDs: []string{"p1", "p2"}}
	if !s.HasProctor("p2") || s.HasProctor("p3") {
		t.Error("HasProctor misreported")
	}
	if !IsValidRole("detector") || IsValidRole("system") {
		t.Error("IsValidRole misreported")
	}
}

func TestNewEventLogsUnmarshalablePayload(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger()
	logging.SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { logging.SetLogger(prev) })

	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	e := NewEvent(EventIncidentUpdated, "inc-1", "S", 3, SeverityHigh, at, make(chan int))
	if len(e.Payload) != 0 {
		t.Errorf("payload = %s, want empty", e.Payload)
	}
	if e.Type != EventIncidentUpdated || e.EntityID != "inc-1" || e.Sequence != 3 {
		t.Errorf("event = %+v", e)
	}
	out := buf.String()
	if !strings.Contains(out, "failed to marshal event payload") || !strings.Contains(out, `"entity_id":"inc-1"`) {
		t.Errorf("log output = %q", out)
	}

	buf.Reset()
	e = NewEvent(EventIncidentUpdated, "inc-1", "S", 4, SeverityHigh, at, map[string]int{"n": 1})
	if string(e.Payload) != `{"n":1}` {
		t.Errorf("payload = %s", e.Payload)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected log output %q", buf.String())
	}
}
