// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package main

import (
	"context"
	"fmt"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/config"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/store"
)

// stores groups the session store and the audit store. With the badger
// backend both share one database.
type stores struct {
	sessions store.Store
	audit    audit.Store

	badger *store.BadgerStore
	// gc is nil unless the backend needs periodic value log GC.
	gc func(ctx context.Context) error
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logging.Warn().Msg("Using in-memory storage; sessions are lost on restart")
		return &stores{
			sessions: store.NewMemoryStore(),
			audit:    audit.NewMemoryStore(cfg.Audit.MemoryCapacity),
		}, nil
	case "badger":
		bs, err := store.Open(cfg.Storage.Path, cfg.Storage.InMemory)
		if err != nil {
			return nil, fmt.Errorf("open badger store at %s: %w", cfg.Storage.Path, err)
		}
		logging.Info().Str("path", cfg.Storage.Path).Bool("in_memory", cfg.Storage.InMemory).Msg("Badger store opened")
		return &stores{
			sessions: bs,
			audit:    audit.NewBadgerStore(bs.DB()),
			badger:   bs,
			gc:       bs.RunGC,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Ping is the store readiness check.
func (s *stores) Ping(context.Context) error {
	if s.badger != nil && s.badger.DB().IsClosed() {
		return fmt.Errorf("badger store is closed")
	}
	return nil
}

func (s *stores) Close() {
	if s.badger == nil {
		return
	}
	if err := s.badger.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing badger store")
	}
}
