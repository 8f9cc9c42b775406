// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bus holds the publisher and subscriber of one backend.
type Bus struct {
	cfg        Config
	publisher  *Publisher
	raw        message.Publisher
	subscriber message.Subscriber
	server     *EmbeddedServer
	conn       *natsgo.Conn
}

// Open connects to the configured backend. For NATS it starts the embedded
// server when configured and provisions the stream.
func Open(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	switch cfg.Backend {
	case BackendGoChannel, "":
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: int64(max(cfg.ForwardBatch, 64)),
		}, logger)
		return &Bus{
			cfg:        cfg,
			publisher:  NewPublisher(ch, nil),
			raw:        ch,
			subscriber: ch,
		}, nil
	case BackendNATS:
		return openNATS(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.Backend)
	}
}

func openNATS(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	b := &Bus{cfg: cfg}
	url := cfg.NATSURL
	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		b.server = srv
		url = srv.ClientURL()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("invigilator"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	nc, err := natsgo.Connect(url, natsOpts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b.conn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if _, err := EnsureStream(ctx, js, cfg); err != nil {
		b.Close()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	b.raw = pub
	b.publisher = NewPublisher(pub, NewCircuitBreaker(cfg.CircuitBreaker))

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     cfg.Router.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.StreamName),
				natsgo.DeliverNew(),
				natsgo.AckExplicit(),
			},
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	b.subscriber = sub

	logger.Info("Event bus connected", watermill.LogFields{
		"url":      url,
		"stream":   cfg.StreamName,
		"embedded": cfg.EmbeddedServer,
	})
	return b, nil
}

// Publisher returns the breaker-guarded publisher.
func (b *Bus) Publisher() *Publisher { return b.publisher }

// RawPublisher returns the unguarded Watermill publisher, for the poison queue.
func (b *Bus) RawPublisher() message.Publisher { return b.raw }

// Subscriber returns the Watermill subscriber.
func (b *Bus) Subscriber() message.Subscriber { return b.subscriber }

// Close releases the backend. Safe to call on a partially opened bus.
func (b *Bus) Close() error {
	var errs []error
	if b.publisher != nil {
		errs = append(errs, b.publisher.Close())
	}
	// gochannel uses one value for both sides
	if b.subscriber != nil && any(b.subscriber) != any(b.raw) {
		errs = append(errs, b.subscriber.Close())
	}
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
	return errors.Join(errs...)
}
