// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return one non-nil instance")
	}
}

type signalRequest struct {
	SessionID  string   `json:"session_id" validate:"required,max=16,entity_id"`
	Channel    string   `json:"channel" validate:"required,channel"`
	Severity   string   `json:"severity_floor" validate:"omitempty,severity"`
	Status     string   `json:"status" validate:"omitempty,incident_status"`
	Command    string   `json:"type" validate:"omitempty,command"`
	ProctorIDs []string `json:"proctor_ids" validate:"max=2"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   signalRequest
		wantErr string
	}{
		{
			name:  "valid",
			input: signalRequest{SessionID: "s1", Channel: "video", Severity: "high", Status: "resolved", Command: "pause"},
		},
		{
			name:    "missing session",
			input:   signalRequest{Channel: "audio"},
			wantErr: "session_id is required",
		},
		{
			name:    "unknown channel",
			input:   signalRequest{SessionID: "s1", Channel: "smell"},
			wantErr: "channel must be one of: video audio screen navigation",
		},
		{
			name:    "bad severity",
			input:   signalRequest{SessionID: "s1", Channel: "audio", Severity: "critical"},
			wantErr: "severity_floor must be one of: low medium high",
		},
		{
			name:    "bad command",
			input:   signalRequest{SessionID: "s1", Channel: "audio", Command: "explode"},
			wantErr: "type must be a known command",
		},
		{
			name:    "too long",
			input:   signalRequest{SessionID: strings.Repeat("x", 17), Channel: "audio"},
			wantErr: "session_id must be at most 16 characters",
		},
		{
			name:  "colon allowed in id",
			input: signalRequest{SessionID: "s:x", Channel: "audio"},
		},
		{
			name:    "nul in id",
			input:   signalRequest{SessionID: "s\x00x", Channel: "audio"},
			wantErr: "session_id must not contain control characters",
		},
		{
			name:    "too many proctors",
			input:   signalRequest{SessionID: "s1", Channel: "audio", ProctorIDs: []string{"a", "b", "c"}},
			wantErr: "proctor_ids must contain at most 2 items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if tt.wantErr == "" {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(verr.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", verr.Error(), tt.wantErr)
			}
		})
	}
}

func TestToDomainError(t *testing.T) {
	verr := ValidateStruct(&signalRequest{})
	if verr == nil {
		t.Fatal("expected a validation error")
	}
	if len(verr.Errors()) != 2 {
		t.Errorf("got %d field errors, want 2", len(verr.Errors()))
	}

	err := verr.ToDomainError()
	if !errors.Is(err, models.ErrMalformedRequest) || err.Kind != models.KindValidation {
		t.Errorf("ToDomainError = %+v", err)
	}
	if d := verr.Details(); len(d) != 2 || d[0]["field"] != "session_id" {
		t.Errorf("Details = %+v", d)
	}
}
