// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package audit records who decided what about an exam session.
//
// # Overview
//
// Every escalation decision is audited, including decisions whose action
// is none, so a reviewer can reconstruct why a session was or was not
// escalated. Session Control commands are audited with their outcome and
// rejection reason, as are incident review changes and denied
// authorizations.
//
// # Event Types
//
//   - escalation.decision: one EscalationDecision; Outcome is failure when a
//     re-check suppressed the action
//   - session.scheduled: session admission
//   - session.command: activate, pause, resume, warn, submit and the two
//     termination steps
//   - incident.status: investigating, acknowledged, resolved, dismissed
//   - authz.denied: a role attempted an action the policy does not grant
//
// # Storage
//
// MemoryStore keeps a bounded slice for tests and single-node development.
// BadgerStore shares the session store's BadgerDB under the "audit:" key
// prefix; events are keyed by timestamp so queries iterate newest first and
// retention cleanup stops at the first event inside the window.
//
// # Usage
//
//	logger := audit.NewLogger(audit.NewBadgerStore(db), audit.DefaultConfig())
//	defer logger.Close()
//
//	logger.LogCommand(ctx, cmd, result, audit.SourceFromRequest(r))
//
// Log never blocks. When the buffer is full the event is dropped and a
// warning is logged.
package audit
