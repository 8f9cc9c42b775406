// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package models defines the data structures shared across Invigilator.

Key Components:

  - ExamSession, SessionRecord, AuditEntry, TerminationHandle: session lifecycle
  - Signal, Receipt: detector observations and their ingress outcome
  - Incident, SeverityChange: the unit of human review
  - EscalationDecision: the audited result of a policy evaluation
  - Event, Subscription, EventPage: the fan-out wire contract
  - Command, CommandResult, IncidentUpdate: Session Control requests and replies
  - Error: the domain error taxonomy

Error Handling:

Every rejection in the engine is an *Error with a stable Reason. Sentinels
compare by reason, so detailed copies built with Errorf still match:

	if errors.Is(err, models.ErrInvalidTransition) {
	    // already terminal, or not a legal move
	}

Thread Safety:

Values in this package are plain data. Session workers own the mutable
copies; anything handed to another goroutine is a copy (see Incident.Clone).
*/
package models
