// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// EventSource is the fan-out subscription API the forwarder consumes.
type EventSource interface {
	Subscribe(actor models.Actor, filter models.SubscriptionFilter, cursor *uint64) (models.Subscription, error)
	Peek(id string, after uint64, limit int) (models.EventPage, error)
	Ack(id string, cursor uint64) error
	Notify(id string) (notify, done <-chan struct{}, err error)
	Unsubscribe(id string) error
	Oldest() uint64
}

// MessagePublisher publishes one message to a topic.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

const (
	minRetryWait = 100 * time.Millisecond
	maxRetryWait = 5 * time.Second
)

// Forwarder copies every fan-out event to <EventsTopic>.<event type>.
// It implements suture.Service.
type Forwarder struct {
	src      EventSource
	pub      MessagePublisher
	topic    string
	batch    int
	instance string

	// cursor is the last offset the bus accepted.
	cursor uint64
}

// NewForwarder creates a forwarder from src to pub.
func NewForwarder(src EventSource, pub MessagePublisher, cfg Config) *Forwarder {
	batch := cfg.ForwardBatch
	if batch <= 0 {
		batch = 256
	}
	return &Forwarder{
		src:      src,
		pub:      pub,
		topic:    cfg.EventsTopic,
		batch:    batch,
		instance: uuid.New().String(),
	}
}

func (f *Forwarder) String() string { return "eventbus-forwarder" }

// Cursor returns the last offset accepted by the bus.
func (f *Forwarder) Cursor() uint64 { return f.cursor }

// Serve forwards until ctx is done. A disconnect by the hub resubscribes
// from the last accepted offset. If that offset has left the hub's log the
// gap is logged as an error and forwarding resumes at the oldest event.
func (f *Forwarder) Serve(ctx context.Context) error {
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, models.ErrCursorExpired) {
			oldest := f.src.Oldest()
			logging.Error().Err(err).
				Uint64("cursor", f.cursor).
				Uint64("oldest_offset", oldest).
				Msg("Forwarder fell behind the fan-out log; events in the gap were not forwarded")
			f.cursor = oldest - 1
			continue
		}
		if !errors.Is(err, models.ErrSubscriberDisconnected) && !errors.Is(err, models.ErrUnknownSubscription) {
			return err
		}
		logging.Warn().Err(err).Uint64("cursor", f.cursor).Msg("Forwarder disconnected from fan-out, resubscribing")
	}
}

func (f *Forwarder) session(ctx context.Context) error {
	cursor := f.cursor
	sub, err := f.src.Subscribe(models.SystemActor, models.SubscriptionFilter{}, &cursor)
	if err != nil {
		return fmt.Errorf("subscribe forwarder: %w", err)
	}
	defer f.src.Unsubscribe(sub.ID) //nolint:errcheck // already gone after a disconnect

	notify, done, err := f.src.Notify(sub.ID)
	if err != nil {
		return err
	}

	logging.Info().Str("subscription_id", sub.ID).Uint64("cursor", sub.Cursor).Msg("Forwarder subscribed")
	wait := minRetryWait
	for {
		page, err := f.src.Peek(sub.ID, f.cursor, f.batch)
		if err != nil {
			return err
		}
		if len(page.Events) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-done:
				return models.ErrSubscriberDisconnected
			case <-notify:
			}
			continue
		}

		sent, err := f.forward(ctx, page.Events)
		if sent > 0 {
			if ackErr := f.src.Ack(sub.ID, f.cursor); ackErr != nil {
				return ackErr
			}
		}
		if err == nil {
			wait = minRetryWait
			continue
		}

		logging.Warn().Err(err).Uint64("cursor", f.cursor).Dur("retry_in", wait).Msg("Event bus publish failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, maxRetryWait)
	}
}

// forward publishes events in order, stopping at the first failure.
func (f *Forwarder) forward(ctx context.Context, events []models.Event) (int, error) {
	for i, e := range events {
		msg, err := f.message(e)
		if err != nil {
			// An event that cannot be encoded never will be; skip it.
			logging.Error().Err(err).Uint64("offset", e.Offset).Msg("Dropping unencodable event")
			f.cursor = e.Offset
			continue
		}
		if err := f.pub.Publish(ctx, f.topic+"."+string(e.Type), msg); err != nil {
			return i, err
		}
		f.cursor = e.Offset
	}
	return len(events), nil
}

func (f *Forwarder) message(e models.Event) (*message.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(f.instance+":"+strconv.FormatUint(e.Offset, 10), data)
	msg.Metadata.Set("event_type", string(e.Type))
	msg.Metadata.Set("session_id", e.SessionID)
	msg.Metadata.Set("entity_id", e.EntityID)
	msg.Metadata.Set("offset", strconv.FormatUint(e.Offset, 10))
	if e.Severity != models.SeverityNone {
		msg.Metadata.Set("severity", string(e.Severity))
	}
	return msg, nil
}
