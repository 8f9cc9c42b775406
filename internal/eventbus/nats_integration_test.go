// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

//go:build integration

package eventbus

import (
	"context"
	"testing"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/testinfra"
)

func TestExternalNATSDeliversSignals(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	nc, err := testinfra.NewNATSContainer(ctx)
	if err != nil {
		t.Fatalf("start NATS: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, nc)

	cfg := testConfig()
	cfg.Backend = BackendNATS
	cfg.EmbeddedServer = false
	cfg.NATSURL = nc.URL
	cfg.StreamName = "INVIGILATOR_IT"

	bus := openBus(t, cfg)
	if bus.server != nil {
		t.Fatal("external mode must not start an embedded server")
	}

	gw := &scriptedGateway{}
	startConsumer(t, NewSignalConsumer(cfg, bus.Subscriber(), bus.RawPublisher(), gw, nil))

	for _, id := range []string{"sig-a", "sig-b"} {
		if err := bus.Publisher().Publish(ctx, cfg.SignalsTopic, signalMessage(t, id, 0.7)); err != nil {
			t.Fatalf("Publish %s: %v", id, err)
		}
	}
	waitCalls(t, gw, 2)
}
