// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/validation"
)

// retryAfterSeconds is sent with every 429.
const retryAfterSeconds = "1"

// sentinels indexes the domain errors by reason so a rejected CommandResult,
// which only carries the reason, maps to the same status as the error.
var sentinels = func() map[string]*models.Error {
	m := make(map[string]*models.Error)
	for _, e := range []*models.Error{
		models.ErrInvalidConfidence,
		models.ErrClockSkew,
		models.ErrMalformedRequest,
		models.ErrUnknownSession,
		models.ErrInvalidTransition,
		models.ErrTerminationHandleInvalid,
		models.ErrConfirmationExpired,
		models.ErrIngressOverload,
		models.ErrNotAuthorized,
		models.ErrUnknownIncident,
		models.ErrInvalidStatusTransition,
		models.ErrDuplicateSession,
		models.ErrUnknownSubscription,
		models.ErrSubscriberDisconnected,
		models.ErrCursorExpired,
		models.ErrRequestTimeout,
		models.ErrWorkerFault,
	} {
		m[e.Reason] = e
	}
	return m
}()

// statusFor maps a domain error to its HTTP status.
func statusFor(e *models.Error) int {
	switch e.Reason {
	case models.ErrUnknownSession.Reason:
		return http.StatusNotFound
	case models.ErrConfirmationExpired.Reason:
		return http.StatusConflict
	}
	switch e.Kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindUnauthorized:
		return http.StatusForbidden
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindStateConflict:
		return http.StatusConflict
	case models.KindTimeout:
		return http.StatusRequestTimeout
	case models.KindTransientOverload:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(reason string) string {
	return strings.ToUpper(reason)
}

// respondDomainError writes err with the status of its kind. Internal errors
// are logged and their message is not echoed.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		NewResponseWriter(w, r).ValidationError(verr.Error(), verr.Details())
		return
	}

	de := models.AsError(err)
	status := statusFor(de)
	message := de.Error()
	if status == http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", sanitizeLogValue(r.URL.Path)).Msg("Request failed")
		message = "internal error"
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	NewResponseWriter(w, r).Error(status, errorCode(de.Reason), message)
}

// respondResult writes a command result. Accepted results are 200; rejected
// ones keep the result as data and use the status of their reason.
func respondResult(w http.ResponseWriter, r *http.Request, res models.CommandResult) {
	rw := NewResponseWriter(w, r)
	if res.Accepted() {
		rw.Success(res)
		return
	}

	status := http.StatusInternalServerError
	if sentinel, ok := sentinels[res.Reason]; ok {
		status = statusFor(sentinel)
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	meta := rw.meta()
	rw.writeJSON(status, APIResponse{
		Success: false,
		Data:    res,
		Error: &APIError{
			Code:      errorCode(res.Reason),
			Message:   res.Message,
			RequestID: meta.RequestID,
		},
		Meta: meta,
	})
}
