// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package escalation

import (
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Digest batches low-severity decisions and releases them at a fixed interval.
type Digest struct {
	interval  time.Duration
	items     []models.EscalationDecision
	lastFlush time.Time
}

// NewDigest creates a digest whose first interval starts at now.
func NewDigest(interval time.Duration, now time.Time) *Digest {
	return &Digest{interval: interval, lastFlush: now}
}

// RestoreDigest rebuilds a digest whose interval started at lastFlush with
// items still queued.
func RestoreDigest(interval time.Duration, lastFlush time.Time, items []models.EscalationDecision) *Digest {
	return &Digest{interval: interval, lastFlush: lastFlush, items: items}
}

// Add queues a decision for the next flush.
func (d *Digest) Add(dec models.EscalationDecision) {
	d.items = append(d.items, dec)
}

// Len returns the number of queued decisions.
func (d *Digest) Len() int { return len(d.items) }

// LastFlush returns when the current interval started.
func (d *Digest) LastFlush() time.Time { return d.lastFlush }

// IDs returns the queued decision IDs in queue order.
func (d *Digest) IDs() []string {
	if len(d.items) == 0 {
		return nil
	}
	ids := make([]string, len(d.items))
	for i := range d.items {
		ids[i] = d.items[i].ID
	}
	return ids
}

// Due reports whether the interval has elapsed and something is queued.
func (d *Digest) Due(now time.Time) bool {
	return len(d.items) > 0 && now.Sub(d.lastFlush) >= d.interval
}

// Flush returns queued decisions if due and starts a new interval.
func (d *Digest) Flush(now time.Time) []models.EscalationDecision {
	if now.Sub(d.lastFlush) < d.interval {
		return nil
	}
	d.lastFlush = now
	out := d.items
	d.items = nil
	return out
}

// Drain returns everything queued regardless of the interval.
func (d *Digest) Drain(now time.Time) []models.EscalationDecision {
	d.lastFlush = now
	out := d.items
	d.items = nil
	return out
}
