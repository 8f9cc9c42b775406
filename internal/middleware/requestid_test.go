// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

func captureIDs(gotRequest, gotCorrelation *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotRequest = logging.RequestIDFromContext(r.Context())
		*gotCorrelation = logging.CorrelationIDFromContext(r.Context())
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generates when absent", "", false},
		{"keeps upstream id", "proxy-abc-123", true},
		{"replaces oversized id", strings.Repeat("x", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var reqID, corrID string
			handler := RequestID(captureIDs(&reqID, &corrID))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if reqID == "" || corrID == "" {
				t.Fatalf("ids missing from context: request=%q correlation=%q", reqID, corrID)
			}
			if got := rec.Header().Get(RequestIDHeader); got != reqID {
				t.Errorf("response header = %q, context = %q", got, reqID)
			}
			if (reqID == tt.incoming) != tt.keep {
				t.Errorf("request id = %q, incoming %q, keep=%v", reqID, tt.incoming, tt.keep)
			}
		})
	}
}

func TestRequestIDIsolatesRequests(t *testing.T) {
	t.Parallel()
	var first, second, corr string
	RequestID(captureIDs(&first, &corr)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	RequestID(captureIDs(&second, &corr)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if first == second {
		t.Errorf("two requests shared id %q", first)
	}
}
