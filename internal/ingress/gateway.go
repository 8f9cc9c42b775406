// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package ingress accepts suspicion signals from external detectors.
//
// The Gateway validates each request, rejects detected-at times too far
// ahead of the observed time (clock skew), applies a per-session token
// bucket, filters replayed signal ids, and hands the signal to the session's
// worker. The worker's Buffer then reorders signals within the lateness
// window before aggregation.
package ingress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/cache"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/metrics"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/validation"
)

// Config holds ingress settings.
type Config struct {
	ClockSkewTolerance time.Duration
	LatenessWindow     time.Duration
	QueueSize          int
	DedupCapacity      int
	DedupTTL           time.Duration
	RatePerSession     float64
	Burst              int
}

// DefaultConfig returns the stock ingress settings.
func DefaultConfig() Config {
	return Config{
		ClockSkewTolerance: 30 * time.Second,
		LatenessWindow:     5 * time.Second,
		QueueSize:          256,
		DedupCapacity:      10000,
		DedupTTL:           10 * time.Minute,
		RatePerSession:     50,
		Burst:              100,
	}
}

// Submitter hands an accepted signal to the session that owns it.
type Submitter interface {
	SubmitSignal(ctx context.Context, sig models.Signal) (models.Receipt, error)
}

// SubmitRequest is the detector-facing signal submission.
type SubmitRequest struct {
	SignalID    string    `json:"signal_id" validate:"omitempty,max=128,entity_id"`
	SessionID   string    `json:"session_id" validate:"required,max=128,entity_id"`
	Channel     string    `json:"channel" validate:"required,channel"`
	Confidence  *float64  `json:"confidence" validate:"required"`
	DetectedAt  time.Time `json:"detected_at" validate:"required"`
	EvidenceRef string    `json:"evidence_ref,omitempty" validate:"omitempty,max=512"`
}

// Gateway is the front door for detector signals. Safe for concurrent use.
type Gateway struct {
	cfg   Config
	sub   Submitter
	dedup *cache.LRUCache
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGateway creates a gateway handing signals to sub.
func NewGateway(cfg Config, sub Submitter) *Gateway {
	return &Gateway{
		cfg:      cfg,
		sub:      sub,
		dedup:    cache.NewLRUCache(cfg.DedupCapacity, cfg.DedupTTL),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// WithClock replaces the time source. Intended for tests.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	g.dedup.WithClock(now)
	return g
}

// Submit validates and forwards one signal.
//
// Validation failures return InvalidConfidence, ClockSkew or
// MalformedRequest. A session over its rate, or whose buffer is full,
// returns IngressOverload and the caller should retry with backoff. A
// replayed signal id returns a duplicate receipt, not an error.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (models.Receipt, error) {
	if verr := validation.ValidateStruct(&req); verr != nil {
		metrics.RecordSignalRejected(models.ErrMalformedRequest.Reason)
		return models.Receipt{}, verr.ToDomainError()
	}

	now := g.now()
	if c := *req.Confidence; c < 0 || c > 1 {
		metrics.RecordSignalRejected(models.ErrInvalidConfidence.Reason)
		return models.Receipt{}, models.Errorf(models.ErrInvalidConfidence, "confidence %v outside [0,1]", c)
	}
	if skew := req.DetectedAt.Sub(now); skew > g.cfg.ClockSkewTolerance {
		metrics.RecordSignalRejected(models.ErrClockSkew.Reason)
		return models.Receipt{}, models.Errorf(models.ErrClockSkew, "detected_at is %s ahead of ingress time", skew.Round(time.Millisecond))
	}

	if !g.limiter(req.SessionID).AllowN(now, 1) {
		metrics.RecordSignalRejected(models.ErrIngressOverload.Reason)
		return models.Receipt{}, models.Errorf(models.ErrIngressOverload, "session %s exceeded %v signals/s", req.SessionID, g.cfg.RatePerSession)
	}

	sig := models.Signal{
		ID:          req.SignalID,
		SessionID:   req.SessionID,
		Channel:     models.Channel(req.Channel),
		Confidence:  *req.Confidence,
		DetectedAt:  req.DetectedAt,
		ReceivedAt:  now,
		EvidenceRef: req.EvidenceRef,
	}
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}

	dedupKey := sig.SessionID + "/" + sig.ID
	if g.dedup.IsDuplicate(dedupKey) {
		metrics.SignalsDuplicate.Inc()
		return models.Receipt{SignalID: sig.ID, SessionID: sig.SessionID, Status: models.ReceiptDuplicate}, nil
	}

	receipt, err := g.sub.SubmitSignal(ctx, sig)
	if err != nil {
		// Not ingested, so a retry with the same id must not look like a replay.
		g.dedup.Remove(dedupKey)
		metrics.RecordSignalRejected(models.ReasonOf(err))
		logging.Ctx(ctx).Debug().
			Str("session_id", sig.SessionID).
			Str("signal_id", sig.ID).
			Str("reason", models.ReasonOf(err)).
			Msg("signal rejected")
		return models.Receipt{}, err
	}

	switch receipt.Status {
	case models.ReceiptAccepted:
		metrics.SignalsIngested.WithLabelValues(string(sig.Channel)).Inc()
	case models.ReceiptDroppedLate:
		metrics.SignalsDroppedLate.Inc()
		logging.Ctx(ctx).Debug().
			Str("session_id", sig.SessionID).
			Str("signal_id", sig.ID).
			Dur("lateness", now.Sub(sig.DetectedAt)).
			Msg("signal dropped after lateness window")
	case models.ReceiptDuplicate:
		metrics.SignalsDuplicate.Inc()
	}
	return receipt, nil
}

// Forget releases per-session state once a session is archived.
func (g *Gateway) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.limiters, sessionID)
}

// Sweep drops expired dedup entries and returns how many were removed.
func (g *Gateway) Sweep() int {
	return g.dedup.CleanupExpired()
}

func (g *Gateway) limiter(sessionID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.cfg.RatePerSession), g.cfg.Burst)
		g.limiters[sessionID] = l
	}
	return l
}
