// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package fanout

import (
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// studentVisible lists the only event types a student may receive.
var studentVisible = map[models.EventType]bool{
	models.EventSessionScheduled:  true,
	models.EventSessionActivated:  true,
	models.EventSessionPaused:     true,
	models.EventSessionResumed:    true,
	models.EventSessionTerminated: true,
	models.EventSessionSubmitted:  true,
	models.EventSessionWarned:     true,
}

// subscriber is the hub-side state of one subscription. All fields are
// guarded by Hub.mu.
type subscriber struct {
	sub      models.Subscription
	sessions map[string]bool

	// queue holds matching events with offsets above sub.Cursor, in offset
	// order. Its length never exceeds the hub's SubscriberBuffer.
	queue []models.Event

	// While stalled, events from backlogFrom onwards stay in the log only.
	stalled      bool
	backlogFrom  uint64
	stalledSince time.Time

	// notify has capacity one and is signaled when the queue grows.
	notify chan struct{}
	done   chan struct{}
}

func newSubscriber(sub models.Subscription) *subscriber {
	s := &subscriber{
		sub:    sub,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if len(sub.Filter.SessionIDs) > 0 {
		s.sessions = make(map[string]bool, len(sub.Filter.SessionIDs))
		for _, id := range sub.Filter.SessionIDs {
			s.sessions[id] = true
		}
	}
	return s
}

// matches applies role visibility, the session filter and the severity
// floor. Events without a severity are not subject to the floor.
func (s *subscriber) matches(e models.Event) bool {
	if s.sub.Role == models.RoleStudent && !studentVisible[e.Type] {
		return false
	}
	if s.sessions != nil && !s.sessions[e.SessionID] {
		return false
	}
	if floor := s.sub.Filter.SeverityFloor; floor != models.SeverityNone && e.Severity != models.SeverityNone {
		return e.Severity.Rank() >= floor.Rank()
	}
	return true
}

// admit queues e, evicting digests to make room. It reports false when e
// must wait because the queue is full of events that may not be dropped.
func (s *subscriber) admit(e models.Event, limit int) (ok bool, dropped string) {
	if len(s.queue) < limit {
		s.queue = append(s.queue, e)
		return true, ""
	}
	for i, q := range s.queue {
		if q.Type == models.EventEscalationDigest {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.queue = append(s.queue, e)
			return true, "oldest_low"
		}
	}
	if e.Type == models.EventEscalationDigest {
		return true, "incoming_low"
	}
	return false, ""
}

// ack drops queued events up to cursor.
func (s *subscriber) ack(cursor uint64) {
	if cursor <= s.sub.Cursor {
		return
	}
	s.sub.Cursor = cursor
	i := 0
	for i < len(s.queue) && s.queue[i].Offset <= cursor {
		i++
	}
	s.queue = append(s.queue[:0], s.queue[i:]...)
}

// page returns up to limit queued events with offsets above after.
func (s *subscriber) page(after uint64, limit int) ([]models.Event, bool) {
	out := make([]models.Event, 0, min(limit, len(s.queue)))
	for _, e := range s.queue {
		if e.Offset <= after {
			continue
		}
		if len(out) == limit {
			return out, true
		}
		out = append(out, e)
	}
	return out, s.stalled
}

func (s *subscriber) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) view() models.Subscription {
	v := s.sub
	v.Pending = len(s.queue)
	v.Stalled = s.stalled
	v.Filter.SessionIDs = append([]string(nil), s.sub.Filter.SessionIDs...)
	return v
}
