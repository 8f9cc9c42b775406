// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package cache

import (
	"sync"
	"time"
)

// HeapEntry is an entry in the min-heap, ordered by (Timestamp, Seq).
type HeapEntry[T any] struct {
	Key       string
	Value     T
	Timestamp time.Time
	Seq       uint64
	index     int // position in the heap slice
}

// MinHeap is a min-heap ordered by timestamp with a sequence tiebreak.
// Push and Pop are O(log n), Peek and Get are O(1).
//
// Ingress uses it as the reorder buffer: signals are keyed by signal id,
// ordered by detected-at time, and ties keep acceptance order.
type MinHeap[T any] struct {
	mu    sync.RWMutex
	heap  []*HeapEntry[T]
	byKey map[string]*HeapEntry[T]
}

// NewMinHeap creates an empty heap.
func NewMinHeap[T any]() *MinHeap[T] {
	return &MinHeap[T]{
		heap:  make([]*HeapEntry[T], 0),
		byKey: make(map[string]*HeapEntry[T]),
	}
}

// Push adds an entry. It returns false, leaving the heap unchanged, if an
// entry with the same key is already present.
func (h *MinHeap[T]) Push(key string, value T, timestamp time.Time, seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.byKey[key]; exists {
		return false
	}

	entry := &HeapEntry[T]{
		Key:       key,
		Value:     value,
		Timestamp: timestamp,
		Seq:       seq,
		index:     len(h.heap),
	}
	h.heap = append(h.heap, entry)
	h.byKey[key] = entry
	h.bubbleUp(entry.index)
	return true
}

// Pop removes and returns the minimum entry, or nil if the heap is empty.
func (h *MinHeap[T]) Pop() *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.heap) == 0 {
		return nil
	}
	return h.removeAt(0)
}

// Peek returns the minimum entry without removing it.
func (h *MinHeap[T]) Peek() *HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.heap) == 0 {
		return nil
	}
	return h.heap[0]
}

// Get retrieves an entry by key, or nil.
func (h *MinHeap[T]) Get(key string) *HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.byKey[key]
}

// Remove removes an entry by key and returns it, or nil if not found.
func (h *MinHeap[T]) Remove(key string) *HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.byKey[key]
	if !exists {
		return nil
	}
	return h.removeAt(entry.index)
}

// Len returns the number of entries.
func (h *MinHeap[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.heap)
}

// PopThrough removes and returns, in heap order, every entry whose
// timestamp is at or before t.
func (h *MinHeap[T]) PopThrough(t time.Time) []*HeapEntry[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	var entries []*HeapEntry[T]
	for len(h.heap) > 0 && !h.heap[0].Timestamp.After(t) {
		entries = append(entries, h.removeAt(0))
	}
	return entries
}

// All returns all entries in no particular order.
func (h *MinHeap[T]) All() []*HeapEntry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := make([]*HeapEntry[T], len(h.heap))
	copy(entries, h.heap)
	return entries
}

// Internal heap operations (must be called with lock held)

func (h *MinHeap[T]) less(i, j int) bool {
	a, b := h.heap[i], h.heap[j]
	if a.Timestamp.Equal(b.Timestamp) {
		return a.Seq < b.Seq
	}
	return a.Timestamp.Before(b.Timestamp)
}

func (h *MinHeap[T]) removeAt(i int) *HeapEntry[T] {
	n := len(h.heap) - 1
	entry := h.heap[i]
	delete(h.byKey, entry.Key)

	if i == n {
		h.heap = h.heap[:n]
		return entry
	}

	h.heap[i] = h.heap[n]
	h.heap[i].index = i
	h.heap = h.heap[:n]

	if !h.bubbleUp(i) {
		h.bubbleDown(i)
	}
	return entry
}

// bubbleUp reports whether the element moved.
func (h *MinHeap[T]) bubbleUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (h *MinHeap[T]) bubbleDown(i int) {
	n := len(h.heap)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			break
		}

		h.swap(i, smallest)
		i = smallest
	}
}

func (h *MinHeap[T]) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.heap[i].index = i
	h.heap[j].index = j
}
