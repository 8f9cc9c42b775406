// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package fanout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Config holds hub settings.
type Config struct {
	SubscriberBuffer int
	StallTimeout     time.Duration
	LogRetention     int
	SweepInterval    time.Duration
	InboxSize        int
}

// DefaultConfig returns the stock hub settings.
func DefaultConfig() Config {
	return Config{
		SubscriberBuffer: 256,
		StallTimeout:     30 * time.Second,
		LogRetention:     100000,
		SweepInterval:    time.Second,
		InboxSize:        1024,
	}
}

// envelope is one Publish call. done is closed once its events are in the
// log; an envelope with no events is a barrier.
type envelope struct {
	events []models.Event
	done   chan struct{}
}

// Hub is the subscription hub.
type Hub struct {
	cfg   Config
	now   func() time.Time
	inbox chan envelope

	mu   sync.RWMutex
	log  []models.Event
	base uint64 // offset of log[0]
	head uint64 // last assigned offset
	subs map[string]*subscriber

	// gone remembers why a subscription was disconnected so the next call
	// on it can report subscriber_disconnected once.
	gone map[string]string
}

// NewHub creates a hub. Call RunWithContext to start it.
func NewHub(cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = def.LogRetention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}
	return &Hub{
		cfg:   cfg,
		now:   time.Now,
		inbox: make(chan envelope, cfg.InboxSize),
		base:  1,
		subs:  make(map[string]*subscriber),
		gone:  make(map[string]string),
	}
}

// WithClock replaces the hub's time source. Used by tests.
func (h *Hub) WithClock(now func() time.Time) *Hub {
	h.now = now
	return h
}

// Publish enqueues events for offset assignment. It blocks while the inbox
// is full, pushing backpressure onto the session worker that produced them.
func (h *Hub) Publish(ctx context.Context, events ...models.Event) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case h.inbox <- envelope{events: events}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until everything published before it is in the log.
func (h *Hub) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case h.inbox <- envelope{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunWithContext assigns offsets and distributes events until ctx is
// canceled. Designed to run as a suture service.
//
// Priority: shutdown, then published events, then the stall sweep.
func (h *Hub) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case env := <-h.inbox:
			h.append(env)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case env := <-h.inbox:
			h.append(env)
		case <-ticker.C:
			h.Sweep(h.now())
		}
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	closed := h.closeAll()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	logging.Info().
		Str("component", "fanout-hub").
		Str("reason", string(reason)).
		Int("subscribers_closed", closed).
		Uint64("head_offset", h.Head()).
		Msg("fanout hub stopped")
}

// append assigns offsets, extends the log and delivers to subscribers.
func (h *Hub) append(env envelope) {
	if env.done != nil {
		defer close(env.done)
	}
	if len(env.events) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.sortedSubscribers()
	now := h.now()
	for _, e := range env.events {
		h.head++
		e.Offset = h.head
		h.log = append(h.log, e)
		metrics.FanoutEvents.WithLabelValues(string(e.Type)).Inc()

		for _, s := range subs {
			h.deliver(s, e, now)
		}
	}
	h.trim()
}

// deliver offers one new event to one subscriber. Caller holds h.mu.
func (h *Hub) deliver(s *subscriber, e models.Event, now time.Time) {
	if s.stalled || e.Offset <= s.sub.Cursor || !s.matches(e) {
		return
	}
	ok, dropped := s.admit(e, h.cfg.SubscriberBuffer)
	if dropped != "" {
		metrics.FanoutDropped.WithLabelValues(dropped).Inc()
	}
	if !ok {
		s.stalled = true
		s.backlogFrom = e.Offset
		s.stalledSince = now
		metrics.FanoutStalls.Inc()
		logging.Warn().
			Str("subscription_id", s.sub.ID).
			Str("actor_id", s.sub.ActorID).
			Uint64("backlog_from", e.Offset).
			Msg("subscriber stalled")
	}
	s.signal()
}

// backfill moves logged events into a stalled or newly attached
// subscriber's queue until the queue is full or the log is exhausted.
// Caller holds h.mu.
func (h *Hub) backfill(s *subscriber, now time.Time) {
	if !s.stalled {
		return
	}
	if s.backlogFrom < h.base {
		h.disconnect(s, "log_truncated")
		return
	}
	admitted := false
	for off := s.backlogFrom; off <= h.head; off++ {
		e := h.log[off-h.base]
		if !s.matches(e) {
			continue
		}
		ok, dropped := s.admit(e, h.cfg.SubscriberBuffer)
		if dropped != "" {
			metrics.FanoutDropped.WithLabelValues(dropped).Inc()
		}
		if !ok {
			// The stall timer measures time without progress.
			if admitted {
				s.stalledSince = now
			}
			s.backlogFrom = off
			s.signal()
			return
		}
		admitted = true
	}
	s.stalled = false
	s.backlogFrom = 0
	s.stalledSince = time.Time{}
	s.signal()
}

// trim bounds the log to LogRetention events. Caller holds h.mu.
func (h *Hub) trim() {
	excess := len(h.log) - h.cfg.LogRetention
	if excess <= h.cfg.LogRetention/4 {
		return
	}
	h.log = append([]models.Event(nil), h.log[excess:]...)
	h.base += uint64(excess)
}

// Subscribe registers a subscription. With a nil cursor it starts at the
// current head; otherwise delivery resumes after *cursor. A cursor whose
// successor is no longer in the log fails with ErrCursorExpired.
func (h *Hub) Subscribe(actor models.Actor, filter models.SubscriptionFilter, cursor *uint64) (models.Subscription, error) {
	switch actor.Role {
	case models.RoleAdmin, models.RoleProctor, models.RoleSystem:
	case models.RoleStudent:
		if len(filter.SessionIDs) == 0 {
			return models.Subscription{}, models.Errorf(models.ErrNotAuthorized, "students must subscribe to their own session")
		}
	default:
		return models.Subscription{}, models.Errorf(models.ErrNotAuthorized, "role %q may not subscribe", actor.Role)
	}
	if filter.SeverityFloor != models.SeverityNone && !filter.SeverityFloor.Valid() {
		return models.Subscription{}, models.Errorf(models.ErrMalformedRequest, "unknown severity floor %q", filter.SeverityFloor)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.head
	if cursor != nil {
		if *cursor > h.head {
			return models.Subscription{}, models.Errorf(models.ErrMalformedRequest, "cursor %d is ahead of head %d", *cursor, h.head)
		}
		start = *cursor
		if start+1 < h.base {
			metrics.FanoutDisconnects.WithLabelValues("cursor_expired").Inc()
			return models.Subscription{}, models.Errorf(models.ErrCursorExpired,
				"cursor %d predates the oldest retained offset %d; resync state and subscribe without a cursor", start, h.base)
		}
	}

	now := h.now()
	s := newSubscriber(models.Subscription{
		ID:        uuid.New().String(),
		ActorID:   actor.ID,
		Role:      actor.Role,
		Filter:    filter,
		Cursor:    start,
		CreatedAt: now,
	})
	if start < h.head {
		s.stalled = true
		s.backlogFrom = start + 1
		s.stalledSince = now
		h.backfill(s, now)
	}
	h.subs[s.sub.ID] = s
	metrics.FanoutSubscribers.Inc()

	logging.Info().
		Str("subscription_id", s.sub.ID).
		Str("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Strs("session_ids", filter.SessionIDs).
		Uint64("cursor", start).
		Msg("subscriber connected")
	return s.view(), nil
}

// Ack records that the subscriber has processed everything up to cursor.
func (h *Hub) Ack(id string, cursor uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.lookup(id)
	if err != nil {
		return err
	}
	if cursor > h.head {
		return models.Errorf(models.ErrMalformedRequest, "cursor %d is ahead of head %d", cursor, h.head)
	}
	s.ack(cursor)
	h.backfill(s, h.now())
	return nil
}

// Events acknowledges after and returns up to limit newer events.
func (h *Hub) Events(id string, after uint64, limit int) (models.EventPage, error) {
	if err := h.Ack(id, after); err != nil {
		return models.EventPage{}, err
	}
	return h.Peek(id, after, limit)
}

// Peek returns up to limit queued events above after without
// acknowledging anything.
func (h *Hub) Peek(id string, after uint64, limit int) (models.EventPage, error) {
	if limit <= 0 {
		limit = h.cfg.SubscriberBuffer
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.subs[id]
	if !ok {
		return models.EventPage{}, h.missing(id)
	}
	events, truncated := s.page(after, limit)
	page := models.EventPage{Events: events, Cursor: after, Truncated: truncated}
	if n := len(events); n > 0 {
		page.Cursor = events[n-1].Offset
	}
	return page, nil
}

// Notify returns the subscription's wake-up channel, signaled whenever new
// events are queued, and a channel closed on disconnect.
func (h *Hub) Notify(id string) (notify, done <-chan struct{}, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subs[id]
	if !ok {
		return nil, nil, h.missing(id)
	}
	return s.notify, s.done, nil
}

// Subscription returns the current state of one subscription.
func (h *Hub) Subscription(id string) (models.Subscription, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.subs[id]
	if !ok {
		return models.Subscription{}, h.missing(id)
	}
	return s.view(), nil
}

// Unsubscribe removes a subscription.
func (h *Hub) Unsubscribe(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.lookup(id)
	if err != nil {
		return err
	}
	h.remove(s, "unsubscribe")
	delete(h.gone, id)
	return nil
}

// Sweep disconnects subscribers stalled for longer than StallTimeout.
func (h *Hub) Sweep(now time.Time) {
	if h.cfg.StallTimeout <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sortedSubscribers() {
		if s.stalled && now.Sub(s.stalledSince) > h.cfg.StallTimeout {
			h.disconnect(s, "stall_timeout")
		}
	}
}

// Oldest returns the offset of the oldest retained event.
func (h *Hub) Oldest() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.base
}

// Head returns the last assigned offset.
func (h *Hub) Head() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.head
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// lookup finds a live subscriber, consuming a pending disconnect notice.
// Caller holds h.mu for writing.
func (h *Hub) lookup(id string) (*subscriber, error) {
	if s, ok := h.subs[id]; ok {
		return s, nil
	}
	err := h.missing(id)
	delete(h.gone, id)
	return nil, err
}

func (h *Hub) missing(id string) error {
	if reason, ok := h.gone[id]; ok {
		return models.Errorf(models.ErrSubscriberDisconnected, "subscription %s disconnected: %s", id, reason)
	}
	return models.Errorf(models.ErrUnknownSubscription, "subscription %s not found", id)
}

// disconnect removes s and remembers why. Caller holds h.mu.
func (h *Hub) disconnect(s *subscriber, reason string) {
	h.remove(s, reason)
	h.gone[s.sub.ID] = reason
	logging.Warn().
		Str("subscription_id", s.sub.ID).
		Str("actor_id", s.sub.ActorID).
		Str("reason", reason).
		Uint64("cursor", s.sub.Cursor).
		Msg("subscriber disconnected")
}

func (h *Hub) remove(s *subscriber, reason string) {
	if _, ok := h.subs[s.sub.ID]; !ok {
		return
	}
	delete(h.subs, s.sub.ID)
	close(s.done)
	metrics.FanoutSubscribers.Dec()
	metrics.FanoutDisconnects.WithLabelValues(reason).Inc()
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.sortedSubscribers()
	for _, s := range subs {
		h.remove(s, "shutdown")
	}
	return len(subs)
}

// sortedSubscribers returns subscribers in id order. Caller holds h.mu.
func (h *Hub) sortedSubscribers() []*subscriber {
	out := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sub.ID < out[j].sub.ID })
	return out
}
