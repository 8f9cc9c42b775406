// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package supervisor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

// stubService counts starts and, when crash is set, panics on its first
// start.
type stubService struct {
	name   string
	crash  bool
	starts atomic.Int32
}

func (s *stubService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 && s.crash {
		panic(s.name + " fault")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := NewTree(logging.NewSlogLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func runTree(t *testing.T, tree *Tree) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("tree stopped with %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("tree did not stop")
		}
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTreeDefaults(t *testing.T) {
	tree, err := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := tree.Config(), DefaultTreeConfig(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
	if tree.Root() == nil || tree.Sessions() == nil {
		t.Error("nil supervisor")
	}

	custom := TreeConfig{FailureThreshold: 2, FailureDecay: 5, FailureBackoff: time.Second, ShutdownTimeout: 3 * time.Second}
	tree, _ = NewTree(logging.NewSlogLogger(), custom)
	if tree.Config() != custom {
		t.Errorf("explicit values were overridden: %+v", tree.Config())
	}
}

func TestTreeStartsEveryLayer(t *testing.T) {
	tree := newTestTree(t)
	svcs := map[string]*stubService{
		"data":      {name: "store-gc"},
		"sessions":  {name: "session-engine"},
		"messaging": {name: "fanout-hub"},
		"api":       {name: "http-server"},
	}
	tree.AddDataService(svcs["data"])
	tree.AddSessionService(svcs["sessions"])
	tree.AddMessagingService(svcs["messaging"])
	tree.AddAPIService(svcs["api"])
	runTree(t, tree)

	for layer, svc := range svcs {
		eventually(t, layer+" service start", func() bool { return svc.starts.Load() >= 1 })
	}
}

func TestSessionFaultIsIsolated(t *testing.T) {
	tree := newTestTree(t)
	hub := &stubService{name: "fanout-hub"}
	tree.AddMessagingService(hub)
	runTree(t, tree)
	eventually(t, "hub start", func() bool { return hub.starts.Load() == 1 })

	// Workers are added to the session layer after the tree is running,
	// the way the engine spawns them.
	worker := &stubService{name: "session-worker:A", crash: true}
	tree.Sessions().Add(worker)

	eventually(t, "worker restart", func() bool { return worker.starts.Load() >= 2 })
	if n := hub.starts.Load(); n != 1 {
		t.Errorf("hub restarted %d times after a session fault", n-1)
	}
}

func TestRemoveMessagingService(t *testing.T) {
	tree := newTestTree(t)
	fwd := &stubService{name: "eventbus-forwarder"}
	token := tree.AddMessagingService(fwd)
	runTree(t, tree)
	eventually(t, "forwarder start", func() bool { return fwd.starts.Load() == 1 })

	if err := tree.RemoveMessagingService(token); err != nil {
		t.Fatalf("RemoveMessagingService: %v", err)
	}
	if err := tree.Root().Remove(token); !errors.Is(err, suture.ErrWrongSupervisor) {
		t.Errorf("removing a messaging token from root = %v, want ErrWrongSupervisor", err)
	}
}
