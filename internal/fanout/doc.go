// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package fanout delivers session, incident and escalation events to live
viewers.

Every published event is assigned a global, contiguous offset and appended
to a bounded in-memory log. Subscribers hold a cursor: the highest offset
they have acknowledged. Delivery is at-least-once. A subscriber that
reconnects with its last cursor receives everything after it, which may
include events it already saw; consumers upsert by (entity_id, sequence).

Key Components:

  - Hub: owns the log and the subscriptions; RunWithContext assigns offsets
    in publish order, so events of one session keep their relative order
  - subscriber: per-subscription queue bounded by Config.SubscriberBuffer
  - Stream: gorilla/websocket push connection for one subscription

Backpressure:

When a subscriber's queue is full the hub first evicts that subscriber's
oldest escalation.digest event, then discards an incoming digest. Any other
event stalls the subscriber: nothing more is queued until it acknowledges,
after which delivery resumes from the log where it stopped. A subscriber
that goes Config.StallTimeout without any backlog progress is disconnected.

Retention:

The log keeps about Config.LogRetention events. Subscribe rejects a cursor
older than the oldest retained offset with cursor_expired rather than
skipping the gap; the caller resyncs state and subscribes again.

Visibility:

  - admin: every event
  - system: every event; used by the event bus forwarder
  - proctor: every event, narrowed by the subscription filter
  - student: lifecycle and warning events of the sessions in the filter
  - detector: may not subscribe

Usage:

	hub := fanout.NewHub(fanout.DefaultConfig())
	go hub.RunWithContext(ctx)

	sub, _ := hub.Subscribe(actor, models.SubscriptionFilter{SessionIDs: []string{"s-1"}}, nil)
	page, _ := hub.Events(sub.ID, sub.Cursor, 100)
*/
package fanout
