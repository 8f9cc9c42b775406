// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout:
//
//	audit:ev:<unix nanos, 20 digits>:<id> -> Event
//	audit:id:<id>                         -> primary key
const (
	prefixEvent = "audit:ev:"
	prefixID    = "audit:id:"
)

// BadgerStore implements Store on a BadgerDB shared with the session store.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates an audit store on db. The caller owns db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func eventKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixEvent, e.Timestamp.UnixNano(), e.ID))
}

// Save persists an audit event.
func (s *BadgerStore) Save(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := eventKey(event)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixID+event.ID), key)
	})
}

// Get retrieves an event by ID.
func (s *BadgerStore) Get(_ context.Context, id string) (*Event, error) {
	var event Event
	err := s.db.View(func(txn *badger.Txn) error {
		ref, err := txn.Get([]byte(prefixID + id))
		if err != nil {
			return err
		}
		key, err := ref.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Query returns matching events, most recent first.
func (s *BadgerStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	var results []Event
	err := s.each(true, func(e *Event) bool {
		if filter.Matches(e) {
			results = append(results, *e)
		}
		return filter.Limit <= 0 || len(results) < filter.Limit
	})
	return results, err
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	var n int64
	err := s.each(false, func(e *Event) bool {
		if filter.Matches(e) {
			n++
		}
		return true
	})
	return n, err
}

// Delete removes events older than olderThan.
func (s *BadgerStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	var stale []*Event
	err := s.each(false, func(e *Event) bool {
		if !e.Timestamp.Before(olderThan) {
			return false
		}
		stale = append(stale, e)
		return true
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range stale {
		if err := wb.Delete(eventKey(e)); err != nil {
			return 0, err
		}
		if err := wb.Delete([]byte(prefixID + e.ID)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	return int64(len(stale)), nil
}

// each visits events in timestamp order (or reverse) until fn returns false.
func (s *BadgerStore) each(reverse bool, fn func(e *Event) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEvent)
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefixEvent)
		if reverse {
			seek = append([]byte(prefixEvent), 0xFF)
		}
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if !fn(&e) {
				return nil
			}
		}
		return nil
	})
}
