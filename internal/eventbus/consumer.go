// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/ingress"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// SignalSubmitter is the ingress gateway.
type SignalSubmitter interface {
	Submit(ctx context.Context, req ingress.SubmitRequest) (models.Receipt, error)
}

// SignalConsumer feeds detector signals from the bus into ingress through
// a Watermill router. It implements suture.Service; each Serve builds a
// fresh router because a closed router cannot be restarted.
type SignalConsumer struct {
	cfg    Config
	sub    message.Subscriber
	poison message.Publisher
	gw     SignalSubmitter
	logger watermill.LoggerAdapter

	readyOnce sync.Once
	ready     chan struct{}
}

// NewSignalConsumer creates a consumer of cfg.SignalsTopic. poison may be
// nil to drop signals that exhaust their retries.
func NewSignalConsumer(cfg Config, sub message.Subscriber, poison message.Publisher, gw SignalSubmitter, logger watermill.LoggerAdapter) *SignalConsumer {
	if logger == nil {
		logger = logging.NewWatermillLogger()
	}
	return &SignalConsumer{
		cfg:    cfg,
		sub:    sub,
		poison: poison,
		gw:     gw,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

func (c *SignalConsumer) String() string { return "eventbus-signal-consumer" }

// Running is closed once the first router is consuming.
func (c *SignalConsumer) Running() <-chan struct{} { return c.ready }

// Serve runs the router until ctx is done.
func (c *SignalConsumer) Serve(ctx context.Context) error {
	router, err := c.newRouter()
	if err != nil {
		return err
	}
	go func() {
		select {
		case <-router.Running():
			c.readyOnce.Do(func() { close(c.ready) })
		case <-ctx.Done():
		}
	}()
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("signal router: %w", err)
	}
	return ctx.Err()
}

func (c *SignalConsumer) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.cfg.Router.CloseTimeout}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// Outermost first: poison after retries are exhausted, retries around
	// recovered panics.
	if c.poison != nil {
		poisonQueue, err := middleware.PoisonQueue(c.poison, c.cfg.PoisonTopic())
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poisonQueue)
	}
	router.AddMiddleware(
		middleware.Retry{
			MaxRetries:      c.cfg.Router.RetryMaxRetries,
			InitialInterval: c.cfg.Router.RetryInitialInterval,
			MaxInterval:     c.cfg.Router.RetryMaxInterval,
			Multiplier:      c.cfg.Router.RetryMultiplier,
			Logger:          c.logger,
		}.Middleware,
		middleware.Recoverer,
	)

	router.AddConsumerHandler("detector-signals", c.cfg.SignalsTopic, c.sub, c.Handle)
	return router, nil
}

// Handle submits one signal. Only transient failures return an error, which
// makes the router retry; every other rejection is acknowledged.
func (c *SignalConsumer) Handle(msg *message.Message) error {
	var req ingress.SubmitRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		metrics.EventBusSignalsConsumed.WithLabelValues("rejected").Inc()
		logging.Debug().Err(err).Str("message_uuid", msg.UUID).Msg("Undecodable signal dropped")
		return nil
	}

	receipt, err := c.gw.Submit(msg.Context(), req)
	if err == nil {
		metrics.EventBusSignalsConsumed.WithLabelValues(string(receipt.Status)).Inc()
		return nil
	}
	if transient(err) {
		metrics.EventBusSignalsConsumed.WithLabelValues("retried").Inc()
		return err
	}

	metrics.EventBusSignalsConsumed.WithLabelValues("rejected").Inc()
	logging.Debug().
		Str("session_id", req.SessionID).
		Str("signal_id", req.SignalID).
		Str("reason", models.ReasonOf(err)).
		Msg("Bus signal rejected")
	return nil
}

func transient(err error) bool {
	return errors.Is(err, models.ErrIngressOverload) ||
		errors.Is(err, models.ErrRequestTimeout) ||
		errors.Is(err, models.ErrWorkerFault)
}
