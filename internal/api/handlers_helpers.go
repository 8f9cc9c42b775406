// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/audit"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/auth"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/validation"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 * 1024

// sanitizeLogValue escapes control characters so request data cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// actorFrom returns the authenticated caller. Routes are mounted behind the
// auth middleware, so a missing actor is a wiring error.
func actorFrom(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		NewResponseWriter(w, r).InternalError("request is not authenticated")
		return models.Actor{}, false
	}
	return actor, true
}

// authorize checks a role permission and writes 403 on denial.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, actor models.Actor, object, action string) bool {
	if err := h.control.Authorize(r.Context(), actor, object, action, audit.SourceFromRequest(r)); err != nil {
		respondDomainError(w, r, err)
		return false
	}
	return true
}

// decodeJSON decodes a bounded body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !decodeBody(w, r, dst) {
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		respondDomainError(w, r, verr)
		return false
	}
	return true
}

// decodeBody decodes a bounded body into dst without validating it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			NewResponseWriter(w, r).Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			NewResponseWriter(w, r).BadRequest("request body is empty")
		default:
			NewResponseWriter(w, r).BadRequest("invalid JSON body: " + err.Error())
		}
		return false
	}
	return true
}

// queryUint reads an optional unsigned query parameter.
func queryUint(r *http.Request, name string) (uint64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, models.Errorf(models.ErrMalformedRequest, "%s must be a non-negative integer", name)
	}
	return v, true, nil
}

// queryLimit reads limit, applying the default and clamping to max.
func queryLimit(r *http.Request, def, maxLimit int) (int, error) {
	v, ok, err := queryUint(r, "limit")
	if err != nil {
		return 0, err
	}
	if !ok || v == 0 {
		return def, nil
	}
	if v > uint64(maxLimit) {
		return maxLimit, nil
	}
	return int(v), nil
}
