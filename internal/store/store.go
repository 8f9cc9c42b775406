// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package store persists the durable state each session worker recovers
// from after a restart: the session record with its audit trail, incidents,
// aggregated signals, signals still held in the reorder buffer, and
// escalation decisions.
//
// Two implementations are provided. BadgerStore is the production backend.
// MemoryStore keeps everything in maps and is used by tests and by
// deployments with storage.backend=memory.
//
// Key layout (BadgerStore):
//
//	session:<session_id>                      -> SessionRecord
//	archive:session:<session_id>              -> SessionRecord (after retention)
//	incident:<session_id>:<incident_id>       -> Incident
//	signal:<session_id>:<sequence>            -> Signal (aggregated)
//	pending:<session_id>:<signal_id>          -> Signal (in reorder buffer)
//	decision:<session_id>:<unix_nano>:<id>    -> EscalationDecision
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the durable state used by session workers.
//
// Each session is written by exactly one worker, so implementations only
// need to be safe for concurrent use across sessions.
type Store interface {
	SaveSession(ctx context.Context, rec models.SessionRecord) error
	LoadSession(ctx context.Context, sessionID string) (models.SessionRecord, error)
	// ListSessions returns every session that has not been archived.
	ListSessions(ctx context.Context) ([]models.SessionRecord, error)

	SaveIncident(ctx context.Context, inc models.Incident) error
	ListIncidents(ctx context.Context, sessionID string) ([]models.Incident, error)

	// AppendSignal records a signal that has been released to aggregation.
	AppendSignal(ctx context.Context, sig models.Signal) error
	// ListSignals returns aggregated signals in sequence order.
	ListSignals(ctx context.Context, sessionID string) ([]models.Signal, error)

	SavePending(ctx context.Context, sig models.Signal) error
	DeletePending(ctx context.Context, sessionID, signalID string) error
	ListPending(ctx context.Context, sessionID string) ([]models.Signal, error)

	SaveDecision(ctx context.Context, d models.EscalationDecision) error
	// ListDecisions returns decisions in the order they were made.
	ListDecisions(ctx context.Context, sessionID string) ([]models.EscalationDecision, error)

	// Archive moves a session out of the live set and drops its pending
	// signals. Incidents, signals and decisions remain queryable.
	Archive(ctx context.Context, sessionID string) error
	// LoadArchived returns an archived session record.
	LoadArchived(ctx context.Context, sessionID string) (models.SessionRecord, error)

	Close() error
}

const (
	prefixSession  = "session:"
	prefixArchive  = "archive:session:"
	prefixIncident = "incident:"
	prefixSignal   = "signal:"
	prefixPending  = "pending:"
	prefixDecision = "decision:"
)

func sessionKey(id string) []byte { return []byte(prefixSession + id) }

func archiveKey(id string) []byte { return []byte(prefixArchive + id) }

// keySep ends the session ID inside per-session keys. Session IDs may
// contain ':' but never NUL (see validation tag "entity_id"), so the
// prefix of session "s" cannot match keys of session "s:x".
const keySep = "\x00"

func incidentKey(sessionID, incidentID string) []byte {
	return []byte(prefixIncident + sessionID + keySep + incidentID)
}

// Sequences are zero padded so that lexical key order is numeric order.
func signalKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d", prefixSignal, sessionID, keySep, seq))
}

func pendingKey(sessionID, signalID string) []byte {
	return []byte(prefixPending + sessionID + keySep + signalID)
}

func decisionKey(d models.EscalationDecision) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d:%s", prefixDecision, d.SessionID, keySep, d.DecidedAt.UnixNano(), d.ID))
}

func sessionPrefix(prefix, sessionID string) []byte {
	return []byte(prefix + sessionID + keySep)
}
