// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/auth"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  *models.Error
		want int
	}{
		{models.ErrInvalidConfidence, http.StatusBadRequest},
		{models.ErrClockSkew, http.StatusBadRequest},
		{models.ErrMalformedRequest, http.StatusBadRequest},
		{models.ErrUnknownSession, http.StatusNotFound},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrTerminationHandleInvalid, http.StatusConflict},
		{models.ErrConfirmationExpired, http.StatusConflict},
		{models.ErrIngressOverload, http.StatusTooManyRequests},
		{models.ErrNotAuthorized, http.StatusForbidden},
		{models.ErrUnknownIncident, http.StatusNotFound},
		{models.ErrDuplicateSession, http.StatusConflict},
		{models.ErrSubscriberDisconnected, http.StatusRequestTimeout},
		{models.ErrCursorExpired, http.StatusConflict},
		{models.ErrWorkerFault, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Reason, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%s) = %d, want %d", tt.err.Reason, got, tt.want)
			}
		})
	}
}

func TestSentinelsCoverEveryReason(t *testing.T) {
	for reason, e := range sentinels {
		if e.Reason != reason {
			t.Errorf("sentinels[%q] has reason %q", reason, e.Reason)
		}
	}
	if _, ok := sentinels[models.ErrIngressOverload.Reason]; !ok {
		t.Error("ingress_overload missing")
	}
}

func TestRespondDomainError(t *testing.T) {
	t.Run("overload sets Retry-After", func(t *testing.T) {
		w := httptest.NewRecorder()
		respondDomainError(w, httptest.NewRequest(http.MethodPost, "/", nil), models.Errorf(models.ErrIngressOverload, "slow down"))
		if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != retryAfterSeconds {
			t.Errorf("got %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
		}
	})

	t.Run("internal errors are not echoed", func(t *testing.T) {
		w := httptest.NewRecorder()
		respondDomainError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("disk on fire"))
		var body APIResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if w.Code != http.StatusInternalServerError || body.Error.Message != "internal error" {
			t.Errorf("got %d %+v", w.Code, body.Error)
		}
	})
}

func TestRespondResult(t *testing.T) {
	tests := []struct {
		name string
		res  models.CommandResult
		want int
		code string
	}{
		{"accepted", models.CommandResult{Status: models.CommandAccepted}, http.StatusOK, ""},
		{"expired", models.Rejected(models.ErrConfirmationExpired), http.StatusConflict, "CONFIRMATION_EXPIRED"},
		{"unknown session", models.Rejected(models.ErrUnknownSession), http.StatusNotFound, "UNKNOWN_SESSION"},
		{"timeout", models.Rejected(models.ErrRequestTimeout), http.StatusRequestTimeout, "REQUEST_TIMEOUT"},
		{"unmapped reason", models.CommandResult{Status: models.CommandRejected, Reason: "mystery"}, http.StatusInternalServerError, "MYSTERY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondResult(w, httptest.NewRequest(http.MethodPost, "/", nil), tt.res)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			var body struct {
				Success bool                 `json:"success"`
				Data    models.CommandResult `json:"data"`
				Error   *APIError            `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Data.Status != tt.res.Status {
				t.Errorf("data status = %q", body.Data.Status)
			}
			if tt.code == "" {
				if !body.Success || body.Error != nil {
					t.Errorf("accepted body = %+v", body)
				}
				return
			}
			if body.Success || body.Error == nil || body.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", body.Error, tt.code)
			}
		})
	}
}

func TestRateLimitKeyedByActor(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	limited := NewChiMiddleware(cfg).RateLimit()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(id string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		r = r.WithContext(auth.ContextWithActor(r.Context(), models.Actor{ID: id, Role: models.RoleProctor}))
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := call("p1"); w.Code != http.StatusNoContent {
			t.Fatalf("call %d = %d", i, w.Code)
		}
	}
	w := call("p1")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("over limit = %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}
	if w := call("p2"); w.Code != http.StatusNoContent {
		t.Errorf("other actor = %d, want own quota", w.Code)
	}
}
