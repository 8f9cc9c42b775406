// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]models.SessionRecord
	archived  map[string]models.SessionRecord
	incidents map[string]map[string]models.Incident
	signals   map[string]map[uint64]models.Signal
	pending   map[string]map[string]models.Signal
	decisions map[string][]models.EscalationDecision
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]models.SessionRecord),
		archived:  make(map[string]models.SessionRecord),
		incidents: make(map[string]map[string]models.Incident),
		signals:   make(map[string]map[uint64]models.Signal),
		pending:   make(map[string]map[string]models.Signal),
		decisions: make(map[string][]models.EscalationDecision),
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, rec models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.Session.ID] = rec
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, sessionID string) (models.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return models.SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) LoadArchived(_ context.Context, sessionID string) (models.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.archived[sessionID]
	if !ok {
		return models.SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]models.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session.ID < out[j].Session.ID })
	return out, nil
}

func (m *MemoryStore) SaveIncident(_ context.Context, inc models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession, ok := m.incidents[inc.SessionID]
	if !ok {
		bySession = make(map[string]models.Incident)
		m.incidents[inc.SessionID] = bySession
	}
	bySession[inc.ID] = *inc.Clone()
	return nil
}

func (m *MemoryStore) ListIncidents(_ context.Context, sessionID string) ([]models.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Incident, 0, len(m.incidents[sessionID]))
	for _, inc := range m.incidents[sessionID] {
		out = append(out, *inc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AppendSignal(_ context.Context, sig models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession, ok := m.signals[sig.SessionID]
	if !ok {
		bySession = make(map[uint64]models.Signal)
		m.signals[sig.SessionID] = bySession
	}
	bySession[sig.Sequence] = sig
	return nil
}

func (m *MemoryStore) ListSignals(_ context.Context, sessionID string) ([]models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Signal, 0, len(m.signals[sessionID]))
	for _, sig := range m.signals[sessionID] {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *MemoryStore) SavePending(_ context.Context, sig models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySession, ok := m.pending[sig.SessionID]
	if !ok {
		bySession = make(map[string]models.Signal)
		m.pending[sig.SessionID] = bySession
	}
	bySession[sig.ID] = sig
	return nil
}

func (m *MemoryStore) DeletePending(_ context.Context, sessionID, signalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending[sessionID], signalID)
	return nil
}

func (m *MemoryStore) ListPending(_ context.Context, sessionID string) ([]models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Signal, 0, len(m.pending[sessionID]))
	for _, sig := range m.pending[sessionID] {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SaveDecision(_ context.Context, d models.EscalationDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d.SessionID] = append(m.decisions[d.SessionID], d)
	return nil
}

func (m *MemoryStore) ListDecisions(_ context.Context, sessionID string) ([]models.EscalationDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.EscalationDecision(nil), m.decisions[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out, nil
}

func (m *MemoryStore) Archive(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	m.archived[sessionID] = rec
	delete(m.sessions, sessionID)
	delete(m.pending, sessionID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
