// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) a BadgerDB database at path. With inMemory set
// the path is ignored and nothing touches disk.
func Open(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", path).
		Bool("in_memory", inMemory).
		Msg("Session store opened")
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// DB exposes the underlying database so other stores (audit) can share it.
func (s *BadgerStore) DB() *badger.DB { return s.db }

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// DefaultGCRatio is the discard ratio passed to value log GC.
const DefaultGCRatio = 0.5

// RunGC rewrites value log files until badger reports nothing left to
// reclaim. It is a no-op for in-memory databases.
func (s *BadgerStore) RunGC(_ context.Context) error {
	if s.db.Opts().InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(DefaultGCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// SaveSession stores the session record.
func (s *BadgerStore) SaveSession(_ context.Context, rec models.SessionRecord) error {
	return s.put(sessionKey(rec.Session.ID), rec)
}

// LoadSession returns a live session record or ErrNotFound.
func (s *BadgerStore) LoadSession(_ context.Context, sessionID string) (models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.get(sessionKey(sessionID), &rec)
	return rec, err
}

// LoadArchived returns an archived session record or ErrNotFound.
func (s *BadgerStore) LoadArchived(_ context.Context, sessionID string) (models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.get(archiveKey(sessionID), &rec)
	return rec, err
}

// ListSessions returns all live session records.
func (s *BadgerStore) ListSessions(_ context.Context) ([]models.SessionRecord, error) {
	var out []models.SessionRecord
	err := scan(s.db, []byte(prefixSession), func(val []byte) error {
		var rec models.SessionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// SaveIncident upserts an incident.
func (s *BadgerStore) SaveIncident(_ context.Context, inc models.Incident) error {
	return s.put(incidentKey(inc.SessionID, inc.ID), inc)
}

// ListIncidents returns the incidents of one session in key order.
func (s *BadgerStore) ListIncidents(_ context.Context, sessionID string) ([]models.Incident, error) {
	var out []models.Incident
	err := scan(s.db, sessionPrefix(prefixIncident, sessionID), func(val []byte) error {
		var inc models.Incident
		if err := json.Unmarshal(val, &inc); err != nil {
			return err
		}
		out = append(out, inc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

// AppendSignal records an aggregated signal under its sequence number.
func (s *BadgerStore) AppendSignal(_ context.Context, sig models.Signal) error {
	return s.put(signalKey(sig.SessionID, sig.Sequence), sig)
}

// ListSignals returns aggregated signals in sequence order.
func (s *BadgerStore) ListSignals(_ context.Context, sessionID string) ([]models.Signal, error) {
	return s.listSignals(sessionPrefix(prefixSignal, sessionID))
}

// SavePending stores a signal held in the reorder buffer.
func (s *BadgerStore) SavePending(_ context.Context, sig models.Signal) error {
	return s.put(pendingKey(sig.SessionID, sig.ID), sig)
}

// DeletePending removes a pending signal. Missing keys are not an error.
func (s *BadgerStore) DeletePending(_ context.Context, sessionID, signalID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(pendingKey(sessionID, signalID))
	})
}

// ListPending returns signals still held in the reorder buffer.
func (s *BadgerStore) ListPending(_ context.Context, sessionID string) ([]models.Signal, error) {
	return s.listSignals(sessionPrefix(prefixPending, sessionID))
}

// SaveDecision records an escalation decision.
func (s *BadgerStore) SaveDecision(_ context.Context, d models.EscalationDecision) error {
	return s.put(decisionKey(d), d)
}

// ListDecisions returns a session's decisions in decision-time order.
func (s *BadgerStore) ListDecisions(_ context.Context, sessionID string) ([]models.EscalationDecision, error) {
	var out []models.EscalationDecision
	err := scan(s.db, sessionPrefix(prefixDecision, sessionID), func(val []byte) error {
		var d models.EscalationDecision
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return out, nil
}

// Archive moves the session record under the archive prefix and deletes
// its pending signals in one transaction.
func (s *BadgerStore) Archive(_ context.Context, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read session: %w", err)
		}
		if err := txn.Set(archiveKey(sessionID), data); err != nil {
			return fmt.Errorf("set archive: %w", err)
		}
		if err := txn.Delete(sessionKey(sessionID)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}

		var pending [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := sessionPrefix(prefixPending, sessionID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pending = append(pending, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range pending {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("delete pending: %w", err)
			}
		}
		return nil
	})
}

func (s *BadgerStore) listSignals(prefix []byte) ([]models.Signal, error) {
	var out []models.Signal
	err := scan(s.db, prefix, func(val []byte) error {
		var sig models.Signal
		if err := json.Unmarshal(val, &sig); err != nil {
			return err
		}
		out = append(out, sig)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", strings.TrimSuffix(string(prefix), keySep), err)
	}
	return out, nil
}

func (s *BadgerStore) put(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) get(key []byte, v interface{}) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// scan calls fn with the value of every key under prefix, in key order.
// The live session prefix is a prefix of nothing else, so "session:" never
// matches archived records ("archive:session:").
func scan(db *badger.DB, prefix []byte, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
