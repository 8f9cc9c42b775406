// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error. Callers branch on the kind to decide
// between retrying, surfacing the failure, or treating it as a terminal outcome.
type ErrorKind string

const (
	// KindValidation covers malformed or out-of-range input. Never retried.
	KindValidation ErrorKind = "validation"

	// KindStateConflict covers commands that do not fit the current session or
	// incident state. Surfaced to the caller, not retried automatically.
	KindStateConflict ErrorKind = "state_conflict"

	// KindTimeout covers expected terminal outcomes such as an expired
	// confirmation handle or a stalled subscriber.
	KindTimeout ErrorKind = "timeout"

	// KindTransientOverload is producer-visible backpressure. Retry with backoff.
	KindTransientOverload ErrorKind = "transient_overload"

	// KindUnauthorized covers role and ownership failures.
	KindUnauthorized ErrorKind = "unauthorized"

	// KindNotFound covers lookups of entities that do not exist.
	KindNotFound ErrorKind = "not_found"

	// KindInternal covers faults inside the engine.
	KindInternal ErrorKind = "internal"
)

// Error is the domain error carried through every layer of the engine.
// Reason is machine readable and stable; Message is for humans.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Reason  string    `json:"reason"`
	Message string    `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Message
}

// Is matches on Reason so that sentinels compare equal to detailed copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// Sentinel errors. Test with errors.Is; attach detail with Errorf.
var (
	ErrInvalidConfidence        = &Error{Kind: KindValidation, Reason: "invalid_confidence"}
	ErrClockSkew                = &Error{Kind: KindValidation, Reason: "clock_skew"}
	ErrMalformedRequest         = &Error{Kind: KindValidation, Reason: "malformed_request"}
	ErrUnknownSession           = &Error{Kind: KindStateConflict, Reason: "unknown_session"}
	ErrInvalidTransition        = &Error{Kind: KindStateConflict, Reason: "invalid_transition"}
	ErrTerminationHandleInvalid = &Error{Kind: KindStateConflict, Reason: "termination_handle_invalid"}
	ErrConfirmationExpired      = &Error{Kind: KindTimeout, Reason: "confirmation_expired"}
	ErrIngressOverload          = &Error{Kind: KindTransientOverload, Reason: "ingress_overload"}
	ErrNotAuthorized            = &Error{Kind: KindUnauthorized, Reason: "not_authorized"}
	ErrUnknownIncident          = &Error{Kind: KindNotFound, Reason: "unknown_incident"}
	ErrInvalidStatusTransition  = &Error{Kind: KindStateConflict, Reason: "invalid_status_transition"}
	ErrDuplicateSession         = &Error{Kind: KindStateConflict, Reason: "duplicate_session"}
	ErrUnknownSubscription      = &Error{Kind: KindNotFound, Reason: "unknown_subscription"}
	ErrSubscriberDisconnected   = &Error{Kind: KindTimeout, Reason: "subscriber_disconnected"}
	ErrCursorExpired            = &Error{Kind: KindStateConflict, Reason: "cursor_expired"}
	ErrRequestTimeout           = &Error{Kind: KindTimeout, Reason: "request_timeout"}
	ErrWorkerFault              = &Error{Kind: KindInternal, Reason: "worker_fault"}
)

// Errorf returns a copy of sentinel with a formatted message.
//
//	return models.Errorf(models.ErrClockSkew, "detected_at ahead by %s", skew)
func Errorf(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Reason:  sentinel.Reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsError extracts the domain error from err. Anything that is not a domain
// error is reported as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Reason: "internal", Message: err.Error()}
}

// ReasonOf returns the machine-readable reason carried by err, or "" for nil.
func ReasonOf(err error) string {
	if e := AsError(err); e != nil {
		return e.Reason
	}
	return ""
}
