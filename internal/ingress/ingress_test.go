// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package ingress

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type fakeSubmitter struct {
	mu   sync.Mutex
	got  []models.Signal
	err  error
	seq  uint64
	fail int // fail the next n submissions with err
}

func (f *fakeSubmitter) SubmitSignal(_ context.Context, sig models.Signal) (models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return models.Receipt{}, f.err
	}
	f.seq++
	f.got = append(f.got, sig)
	return models.Receipt{SignalID: sig.ID, SessionID: sig.SessionID, Sequence: f.seq, Status: models.ReceiptAccepted}, nil
}

func conf(v float64) *float64 { return &v }

func newGateway(sub Submitter) *Gateway {
	cfg := DefaultConfig()
	cfg.RatePerSession = 1
	cfg.Burst = 3
	return NewGateway(cfg, sub).WithClock(func() time.Time { return t0 })
}

func TestGatewayValidation(t *testing.T) {
	t.Parallel()

	g := newGateway(&fakeSubmitter{})
	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"confidence above one", SubmitRequest{SessionID: "S", Channel: "video", Confidence: conf(1.01), DetectedAt: t0}, models.ErrInvalidConfidence},
		{"negative confidence", SubmitRequest{SessionID: "S", Channel: "video", Confidence: conf(-0.1), DetectedAt: t0}, models.ErrInvalidConfidence},
		{"clock skew", SubmitRequest{SessionID: "S", Channel: "video", Confidence: conf(0.5), DetectedAt: t0.Add(31 * time.Second)}, models.ErrClockSkew},
		{"missing confidence", SubmitRequest{SessionID: "S", Channel: "video", DetectedAt: t0}, models.ErrMalformedRequest},
		{"unknown channel", SubmitRequest{SessionID: "S", Channel: "smell", Confidence: conf(0.5), DetectedAt: t0}, models.ErrMalformedRequest},
		{"missing session", SubmitRequest{Channel: "audio", Confidence: conf(0.5), DetectedAt: t0}, models.ErrMalformedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGatewaySkewWithinTolerance(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	g := newGateway(sub)
	r, err := g.Submit(context.Background(), SubmitRequest{SessionID: "S", Channel: "audio", Confidence: conf(0), DetectedAt: t0.Add(30 * time.Second)})
	if err != nil || r.Status != models.ReceiptAccepted {
		t.Fatalf("Submit = (%+v, %v)", r, err)
	}
	if sub.got[0].ID == "" || !sub.got[0].ReceivedAt.Equal(t0) {
		t.Errorf("signal not stamped: %+v", sub.got[0])
	}
}

func TestGatewayReplayIsDuplicate(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	g := newGateway(sub)
	req := SubmitRequest{SignalID: "sig-1", SessionID: "S", Channel: "video", Confidence: conf(0.7), DetectedAt: t0}

	if r, _ := g.Submit(context.Background(), req); r.Status != models.ReceiptAccepted {
		t.Fatalf("first status = %s", r.Status)
	}
	r, err := g.Submit(context.Background(), req)
	if err != nil || r.Status != models.ReceiptDuplicate {
		t.Fatalf("replay = (%+v, %v), want duplicate", r, err)
	}
	if len(sub.got) != 1 {
		t.Errorf("submitter saw %d signals, want 1", len(sub.got))
	}
}

func TestGatewayRejectedSignalMayBeRetried(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{err: models.Errorf(models.ErrIngressOverload, "full"), fail: 1}
	g := newGateway(sub)
	req := SubmitRequest{SignalID: "sig-1", SessionID: "S", Channel: "video", Confidence: conf(0.7), DetectedAt: t0}

	if _, err := g.Submit(context.Background(), req); !errors.Is(err, models.ErrIngressOverload) {
		t.Fatalf("err = %v, want overload", err)
	}
	r, err := g.Submit(context.Background(), req)
	if err != nil || r.Status != models.ReceiptAccepted {
		t.Fatalf("retry = (%+v, %v), want accepted", r, err)
	}
}

func TestGatewayRateLimitPerSession(t *testing.T) {
	t.Parallel()

	g := newGateway(&fakeSubmitter{})
	submit := func(session string) error {
		_, err := g.Submit(context.Background(), SubmitRequest{SessionID: session, Channel: "audio", Confidence: conf(0.4), DetectedAt: t0})
		return err
	}

	for i := 0; i < 3; i++ {
		if err := submit("A"); err != nil {
			t.Fatalf("burst submission %d: %v", i, err)
		}
	}
	err := submit("A")
	if !errors.Is(err, models.ErrIngressOverload) {
		t.Fatalf("err = %v, want ingress_overload", err)
	}
	if models.AsError(err).Kind != models.KindTransientOverload {
		t.Error("overload must be a transient kind")
	}
	if err := submit("B"); err != nil {
		t.Errorf("other sessions must not be throttled: %v", err)
	}
}

func TestBufferReordersWithinWindow(t *testing.T) {
	t.Parallel()

	b := NewBuffer(5*time.Second, 10)
	var seq uint64
	assign := func() uint64 { seq++; return seq }

	offer := func(id string, detected time.Duration, observed time.Duration) models.Receipt {
		r, err := b.Offer(models.Signal{ID: id, SessionID: "S", DetectedAt: t0.Add(detected)}, t0.Add(observed), assign)
		if err != nil {
			t.Fatalf("Offer(%s): %v", id, err)
		}
		return r
	}

	offer("c", 3*time.Second, 3*time.Second)
	offer("a", 1*time.Second, 4*time.Second)
	offer("b", 2*time.Second, 4*time.Second)

	if got := b.Release(t0.Add(5 * time.Second)); len(got) != 0 {
		t.Fatalf("released %d signals before their window passed", len(got))
	}

	got := b.Release(t0.Add(8 * time.Second))
	if len(got) != 3 {
		t.Fatalf("released %d, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Errorf("release[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
	if got[0].Sequence != 2 || got[2].Sequence != 1 {
		t.Errorf("sequences should reflect acceptance order: %+v", got)
	}
}

func TestBufferDropsLateAndDuplicates(t *testing.T) {
	t.Parallel()

	b := NewBuffer(5*time.Second, 10)
	calls := 0
	assign := func() uint64 { calls++; return uint64(calls) }

	r, _ := b.Offer(models.Signal{ID: "late", DetectedAt: t0}, t0.Add(5*time.Second+time.Millisecond), assign)
	if r.Status != models.ReceiptDroppedLate {
		t.Errorf("status = %s, want dropped_late", r.Status)
	}

	b.Offer(models.Signal{ID: "x", DetectedAt: t0}, t0, assign)
	r, _ = b.Offer(models.Signal{ID: "x", DetectedAt: t0}, t0, assign)
	if r.Status != models.ReceiptDuplicate {
		t.Errorf("status = %s, want duplicate", r.Status)
	}
	if calls != 1 {
		t.Errorf("sequence assigned %d times, want 1", calls)
	}
}

func TestBufferCapacity(t *testing.T) {
	t.Parallel()

	b := NewBuffer(5*time.Second, 1)
	assign := func() uint64 { return 1 }
	b.Offer(models.Signal{ID: "a", DetectedAt: t0}, t0, assign)

	_, err := b.Offer(models.Signal{ID: "b", DetectedAt: t0}, t0, assign)
	if !errors.Is(err, models.ErrIngressOverload) {
		t.Fatalf("err = %v, want ingress_overload", err)
	}
}

func TestBufferRestoreAndDrain(t *testing.T) {
	t.Parallel()

	b := NewBuffer(5*time.Second, 10)
	b.Restore([]models.Signal{
		{ID: "two", DetectedAt: t0.Add(time.Second), Sequence: 7},
		{ID: "one", DetectedAt: t0, Sequence: 9},
	})
	if !b.Contains("two") || b.Len() != 2 {
		t.Fatal("restore lost signals")
	}
	got := b.Drain()
	if len(got) != 2 || got[0].ID != "one" || got[1].Sequence != 7 {
		t.Errorf("drain = %+v", got)
	}
}
