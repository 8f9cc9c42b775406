// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package incident correlates one session's signals into incidents.
//
// Each channel group (visual, audio, navigation) has its own correlation
// windows. A signal joins the most recent open incident of its group when
// its detected-at time is within CollectUntil (last-seen + gap); otherwise
// it opens a new incident. Severity is recomputed on every join and never
// decreases. Windows settle once the ingress watermark passes CollectUntil.
//
// An Aggregator belongs to a single session worker and does not lock.
package incident

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// ChangeKind describes what happened to an incident.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeSettled ChangeKind = "settled"
	ChangeStatus  ChangeKind = "status"
)

// Change reports one incident mutation. Incident is a copy.
type Change struct {
	Kind             ChangeKind
	Incident         *models.Incident
	PreviousSeverity models.Severity
	Reopened         bool
}

// SeverityChanged reports whether the change raised severity.
func (c Change) SeverityChanged() bool {
	return c.Incident.Severity != c.PreviousSeverity
}

// Outcome is the aggregation result for one signal.
type Outcome string

const (
	OutcomeJoined         Outcome = "joined"
	OutcomeCreated        Outcome = "created"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeBelowThreshold Outcome = "below_threshold"
)

// Aggregator holds the incidents of one session.
type Aggregator struct {
	cfg       Config
	sessionID string
	incidents map[string]*models.Incident
	order     []string
	seen      map[string]struct{}
}

// NewAggregator creates an empty aggregator for sessionID.
func NewAggregator(sessionID string, cfg Config) *Aggregator {
	return &Aggregator{
		cfg:       cfg,
		sessionID: sessionID,
		incidents: make(map[string]*models.Incident),
		seen:      make(map[string]struct{}),
	}
}

// Restore loads durable incidents and the ids of every signal already
// aggregated so that replays after a restart stay idempotent.
func (a *Aggregator) Restore(incidents []models.Incident, signalIDs []string) {
	sorted := append([]models.Incident(nil), incidents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstSeen.Before(sorted[j].FirstSeen)
	})
	for i := range sorted {
		inc := sorted[i].Clone()
		a.incidents[inc.ID] = inc
		a.order = append(a.order, inc.ID)
		for _, id := range inc.SignalIDs {
			a.seen[id] = struct{}{}
		}
	}
	for _, id := range signalIDs {
		a.seen[id] = struct{}{}
	}
}

// Seen reports whether signalID has already been aggregated.
func (a *Aggregator) Seen(signalID string) bool {
	_, ok := a.seen[signalID]
	return ok
}

// Add aggregates one signal. Duplicate and below-threshold signals produce
// no change.
func (a *Aggregator) Add(sig models.Signal, now time.Time) (Outcome, *Change) {
	if a.Seen(sig.ID) {
		return OutcomeDuplicate, nil
	}
	a.seen[sig.ID] = struct{}{}

	if sig.Confidence < a.cfg.MinConfidence {
		return OutcomeBelowThreshold, nil
	}

	if inc := a.openFor(sig); inc != nil {
		prev := inc.Severity
		a.extend(inc, sig, now)
		return OutcomeJoined, &Change{Kind: ChangeUpdated, Incident: inc.Clone(), PreviousSeverity: prev}
	}

	inc := &models.Incident{
		ID:        uuid.New().String(),
		SessionID: a.sessionID,
		Category:  sig.Channel.Group(),
		Status:    models.IncidentNew,
		FirstSeen: sig.DetectedAt,
		LastSeen:  sig.DetectedAt,
	}
	a.incidents[inc.ID] = inc
	a.order = append(a.order, inc.ID)
	a.extend(inc, sig, now)

	return OutcomeCreated, &Change{Kind: ChangeCreated, Incident: inc.Clone(), PreviousSeverity: models.SeverityNone}
}

// openFor returns the incident sig joins, preferring the most recently seen.
func (a *Aggregator) openFor(sig models.Signal) *models.Incident {
	var best *models.Incident
	group := sig.Channel.Group()
	for _, id := range a.order {
		inc := a.incidents[id]
		if inc.Category != group || inc.Settled || inc.Status.IsTerminal() {
			continue
		}
		if sig.DetectedAt.After(inc.CollectUntil) {
			continue
		}
		if best == nil || inc.LastSeen.After(best.LastSeen) {
			best = inc
		}
	}
	return best
}

func (a *Aggregator) extend(inc *models.Incident, sig models.Signal, now time.Time) {
	inc.SignalIDs = append(inc.SignalIDs, sig.ID)
	if !inc.HasChannel(sig.Channel) {
		inc.Channels = append(inc.Channels, sig.Channel)
	}
	if sig.Confidence > inc.MaxConfidence {
		inc.MaxConfidence = sig.Confidence
	}
	if sig.DetectedAt.After(inc.LastSeen) {
		inc.LastSeen = sig.DetectedAt
	}
	if sig.DetectedAt.Before(inc.FirstSeen) {
		inc.FirstSeen = sig.DetectedAt
	}
	if until := inc.LastSeen.Add(a.cfg.CorrelationGap); until.After(inc.CollectUntil) {
		inc.CollectUntil = until
	}

	score := a.cfg.Score(inc.MaxConfidence, len(inc.Channels), len(inc.SignalIDs))
	if next := models.MaxSeverity(inc.Severity, score); next != inc.Severity {
		inc.Severity = next
		inc.SeverityHistory = append(inc.SeverityHistory, models.SeverityChange{Severity: next, At: sig.DetectedAt})
	}

	inc.Version++
	inc.UpdatedAt = now
}

// Settle closes every correlation window whose CollectUntil is before the
// watermark. Settling does not change status.
func (a *Aggregator) Settle(watermark, now time.Time) []Change {
	var changes []Change
	for _, id := range a.order {
		inc := a.incidents[id]
		if inc.Settled || !inc.CollectUntil.Before(watermark) {
			continue
		}
		inc.Settled = true
		inc.Version++
		inc.UpdatedAt = now
		changes = append(changes, Change{Kind: ChangeSettled, Incident: inc.Clone(), PreviousSeverity: inc.Severity})
	}
	return changes
}

// SetStatus applies a human status change. Moving a settled incident to
// investigating reopens its correlation window for one gap from now.
func (a *Aggregator) SetStatus(id string, status models.IncidentStatus, actor models.Actor, note string, now time.Time) (*Change, error) {
	inc, ok := a.incidents[id]
	if !ok {
		return nil, models.Errorf(models.ErrUnknownIncident, "incident %s not found in session %s", id, a.sessionID)
	}
	if !status.Valid() || !inc.Status.CanTransition(status) {
		return nil, models.Errorf(models.ErrInvalidStatusTransition, "%s -> %s not permitted", inc.Status, status)
	}

	change := &Change{Kind: ChangeStatus, PreviousSeverity: inc.Severity}
	inc.Status = status
	switch status {
	case models.IncidentResolved, models.IncidentDismissed:
		inc.ResolvedBy = actor.ID
		inc.ResolutionNote = note
	case models.IncidentInvestigating:
		if inc.Settled {
			inc.Settled = false
			inc.CollectUntil = now.Add(a.cfg.CorrelationGap)
			change.Reopened = true
		}
	}
	inc.Version++
	inc.UpdatedAt = now

	change.Incident = inc.Clone()
	return change, nil
}

// Get returns a copy of one incident.
func (a *Aggregator) Get(id string) (*models.Incident, bool) {
	inc, ok := a.incidents[id]
	if !ok {
		return nil, false
	}
	return inc.Clone(), true
}

// Incidents returns copies of all incidents in creation order.
func (a *Aggregator) Incidents() []models.Incident {
	out := make([]models.Incident, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.incidents[id].Clone())
	}
	return out
}

// OpenBySeverity counts incidents whose status is not terminal.
func (a *Aggregator) OpenBySeverity() map[models.Severity]int {
	counts := make(map[models.Severity]int)
	for _, inc := range a.incidents {
		if !inc.Status.IsTerminal() {
			counts[inc.Severity]++
		}
	}
	return counts
}
