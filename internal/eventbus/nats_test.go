// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

// natsTestConfig runs an embedded JetStream server on a random port.
func natsTestConfig(t *testing.T) Config {
	t.Helper()
	cfg := testConfig()
	cfg.Backend = BackendNATS
	cfg.EmbeddedServer = true
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = -1
	cfg.StoreDir = t.TempDir()
	cfg.StreamName = "INVIGILATOR_TEST"
	return cfg
}

func TestEmbeddedNATSDeliversSignals(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	cfg := natsTestConfig(t)
	bus := openBus(t, cfg)
	if bus.server == nil || !bus.server.IsRunning() {
		t.Fatal("embedded server not running")
	}

	gw := &scriptedGateway{}
	startConsumer(t, NewSignalConsumer(cfg, bus.Subscriber(), bus.RawPublisher(), gw, nil))

	if err := bus.Publisher().Publish(context.Background(), cfg.SignalsTopic, signalMessage(t, "sig-nats", 0.8)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for gw.callCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if gw.callCount() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gw.callCount())
	}
}

func TestEmbeddedNATSReopenKeepsStream(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	cfg := natsTestConfig(t)

	first, err := Open(context.Background(), cfg, logging.NewWatermillLogger())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Same store directory: the stream exists and is updated in place.
	cfg.StreamMaxAge = time.Hour
	second, err := Open(context.Background(), cfg, logging.NewWatermillLogger())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
