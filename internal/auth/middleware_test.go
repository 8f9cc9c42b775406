// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

// echoActor writes the authenticated actor as "id/role".
var echoActor = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "no actor", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, actor.ID+"/"+string(actor.Role))
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	t.Parallel()
	now := time.Now()
	mgr := newManager(t, &now)
	mw, err := NewMiddleware(MiddlewareConfig{AuthMode: AuthModeJWT, JWTManager: mgr})
	if err != nil {
		t.Fatalf("NewMiddleware: %v", err)
	}
	h := mw.Authenticate(echoActor)

	good, _ := mgr.GenerateToken(models.Actor{ID: "stu-1", Role: models.RoleStudent})
	bad, _ := mgr.GenerateToken(models.Actor{ID: "x", Role: "janitor"})

	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{"bearer", "Bearer " + good, "", http.StatusOK, "stu-1/student"},
		{"query token", "", good, http.StatusOK, "stu-1/student"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic Zm9vOmJhcg==", good, http.StatusUnauthorized, ""},
		{"unknown role", "Bearer " + bad, "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/v1/stats"
			if tt.query != "" {
				target += "?" + TokenQueryParam + "=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, r)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHeaderMiddleware(t *testing.T) {
	t.Parallel()
	mw, err := NewMiddleware(MiddlewareConfig{AuthMode: AuthModeHeader})
	if err != nil {
		t.Fatalf("NewMiddleware: %v", err)
	}
	h := mw.Authenticate(echoActor)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderActorID, "det-7")
	r.Header.Set(HeaderActorRole, "detector")
	if rec := serve(h, r); rec.Code != http.StatusOK || rec.Body.String() != "det-7/detector" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	// system is engine-internal and cannot be claimed by a caller.
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderActorID, "x")
	r.Header.Set(HeaderActorRole, "system")
	if rec := serve(h, r); rec.Code != http.StatusUnauthorized {
		t.Errorf("system role accepted: %d", rec.Code)
	}
}

func TestNewMiddlewareValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewMiddleware(MiddlewareConfig{AuthMode: AuthModeJWT}); err == nil {
		t.Error("jwt mode without manager accepted")
	}
	if _, err := NewMiddleware(MiddlewareConfig{AuthMode: "basic"}); err == nil {
		t.Error("unsupported mode accepted")
	}
	if m, err := ParseAuthMode(""); err != nil || m != AuthModeJWT {
		t.Errorf("ParseAuthMode(\"\") = %v, %v", m, err)
	}
}
