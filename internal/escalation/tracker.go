// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package escalation

import (
	"sort"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Tracker counts a session's crossings into medium severity within a
// sliding window and remembers the last termination recommendation.
// Owned by one session worker.
type Tracker struct {
	window        time.Duration
	crossings     []time.Time
	lastRecommend time.Time
}

// NewTracker creates a tracker for window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{window: window}
}

// Rebuild restores a tracker from durable incident severity histories and
// the session audit trail.
func Rebuild(window time.Duration, incidents []models.Incident, trail []models.AuditEntry) *Tracker {
	t := NewTracker(window)
	for i := range incidents {
		for _, ch := range incidents[i].SeverityHistory {
			if ch.Severity == models.SeverityMedium {
				t.crossings = append(t.crossings, ch.At)
			}
		}
	}
	sort.Slice(t.crossings, func(i, j int) bool { return t.crossings[i].Before(t.crossings[j]) })

	for _, e := range trail {
		if e.Action == models.AuditTerminationRecommend && e.At.After(t.lastRecommend) {
			t.lastRecommend = e.At
		}
	}
	return t
}

// RecordMedium records a crossing at and returns how many crossings fall
// within the window ending at at.
func (t *Tracker) RecordMedium(at time.Time) int {
	t.crossings = append(t.crossings, at)
	sort.Slice(t.crossings, func(i, j int) bool { return t.crossings[i].Before(t.crossings[j]) })
	return t.Count(at)
}

// Count returns the crossings within the window ending at now. Crossings
// older than the window are discarded.
func (t *Tracker) Count(now time.Time) int {
	from := now.Add(-t.window)
	kept := t.crossings[:0]
	n := 0
	for _, c := range t.crossings {
		if c.Before(from) {
			continue
		}
		kept = append(kept, c)
		if !c.After(now) {
			n++
		}
	}
	t.crossings = kept
	return n
}

// RecommendedWithin reports whether a recommendation was made within the
// window ending at now.
func (t *Tracker) RecommendedWithin(now time.Time) bool {
	return !t.lastRecommend.IsZero() && now.Sub(t.lastRecommend) < t.window
}

// MarkRecommended records a recommendation at.
func (t *Tracker) MarkRecommended(at time.Time) {
	if at.After(t.lastRecommend) {
		t.lastRecommend = at
	}
}
