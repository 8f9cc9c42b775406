// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package main

import (
	"context"
	"fmt"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/config"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/eventbus"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/fanout"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/supervisor"
)

// initEventBus opens the configured bus and adds the forwarder and the
// signal consumer to the messaging layer. The caller closes the bus after
// the tree has stopped.
func initEventBus(ctx context.Context, cfg *config.Config, tree *supervisor.Tree, hub *fanout.Hub, signals eventbus.SignalSubmitter) (*eventbus.Bus, error) {
	busCfg := cfg.ToEventBusConfig()
	wmLogger := logging.NewWatermillLogger()

	bus, err := eventbus.Open(ctx, busCfg, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("open event bus: %w", err)
	}

	tree.AddMessagingService(eventbus.NewForwarder(hub, bus.Publisher(), busCfg))
	tree.AddMessagingService(eventbus.NewSignalConsumer(busCfg, bus.Subscriber(), bus.RawPublisher(), signals, wmLogger))

	logging.Info().
		Str("backend", busCfg.Backend).
		Str("events_topic", busCfg.EventsTopic).
		Str("signals_topic", busCfg.SignalsTopic).
		Msg("Event bus services added")
	return bus, nil
}
