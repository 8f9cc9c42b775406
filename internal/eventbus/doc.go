// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package eventbus connects the engine to an external message bus using
// Watermill.
//
// Two flows cross the bus:
//
//	fan-out hub --Forwarder--> <events_topic>.<event type>
//	<signals_topic> --SignalConsumer (router)--> ingress gateway
//
// The Forwarder is an ordinary fan-out subscriber. It acknowledges an event
// only after the bus accepted it, so a broker outage stalls it in the hub
// like any slow viewer and delivery resumes from its cursor afterwards.
// Messages carry Nats-Msg-Id "<instance>:<offset>" so JetStream drops the
// duplicates that at-least-once redelivery produces.
//
// The SignalConsumer retries IngressOverload with exponential backoff and
// acknowledges every other rejection after logging it; a malformed signal
// will never become valid by retrying.
//
// # Backends
//
//   - gochannel: in-process, for single-node deployments and tests
//   - nats: JetStream, optionally on an embedded nats-server
//
// Publishes to NATS go through a gobreaker circuit breaker whose state is
// exported as invigilator_circuit_breaker_state.
package eventbus
