// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package ingress

import (
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/cache"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Buffer reorders one session's signals within the lateness window.
//
// A signal observed more than the lateness window after it was detected is
// dropped. Accepted signals are held until now - detectedAt reaches the
// window and are then released in (detectedAt, sequence) order, so every
// released batch is final with respect to the watermark now - lateness.
//
// Buffer is owned by a session worker.
type Buffer struct {
	lateness time.Duration
	capacity int
	heap     *cache.MinHeap[models.Signal]
}

// NewBuffer creates a buffer holding at most capacity signals.
func NewBuffer(lateness time.Duration, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &Buffer{
		lateness: lateness,
		capacity: capacity,
		heap:     cache.NewMinHeap[models.Signal](),
	}
}

// Offer admits sig observed at observedAt. assign is called only when the
// signal is accepted and supplies its per-session sequence number.
func (b *Buffer) Offer(sig models.Signal, observedAt time.Time, assign func() uint64) (models.Receipt, error) {
	receipt := models.Receipt{SignalID: sig.ID, SessionID: sig.SessionID}

	if observedAt.Sub(sig.DetectedAt) > b.lateness {
		receipt.Status = models.ReceiptDroppedLate
		return receipt, nil
	}
	if b.heap.Get(sig.ID) != nil {
		receipt.Status = models.ReceiptDuplicate
		return receipt, nil
	}
	if b.heap.Len() >= b.capacity {
		return receipt, models.Errorf(models.ErrIngressOverload, "reorder buffer for session %s is full", sig.SessionID)
	}

	sig.Sequence = assign()
	b.heap.Push(sig.ID, sig, sig.DetectedAt, sig.Sequence)

	receipt.Sequence = sig.Sequence
	receipt.Status = models.ReceiptAccepted
	return receipt, nil
}

// Restore re-admits signals that were pending before a restart. Their
// sequence numbers are kept.
func (b *Buffer) Restore(pending []models.Signal) {
	for _, sig := range pending {
		b.heap.Push(sig.ID, sig, sig.DetectedAt, sig.Sequence)
	}
}

// Release removes and returns every signal whose lateness window has passed.
func (b *Buffer) Release(now time.Time) []models.Signal {
	return values(b.heap.PopThrough(b.Watermark(now)))
}

// Drain removes and returns everything, in order.
func (b *Buffer) Drain() []models.Signal {
	var out []models.Signal
	for e := b.heap.Pop(); e != nil; e = b.heap.Pop() {
		out = append(out, e.Value)
	}
	return out
}

// Watermark is the event time up to which no further signal can arrive.
func (b *Buffer) Watermark(now time.Time) time.Time {
	return now.Add(-b.lateness)
}

// Contains reports whether a signal id is pending.
func (b *Buffer) Contains(signalID string) bool {
	return b.heap.Get(signalID) != nil
}

// Len returns the number of pending signals.
func (b *Buffer) Len() int { return b.heap.Len() }

func values(entries []*cache.HeapEntry[models.Signal]) []models.Signal {
	out := make([]models.Signal, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
