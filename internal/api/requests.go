// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package api

import (
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// ScheduleSessionRequest is the body of POST /api/v1/sessions.
// ScheduledDuration is a Go duration string such as "90m".
type ScheduleSessionRequest struct {
	SessionID         string   `json:"session_id" validate:"required,max=128,entity_id"`
	StudentID         string   `json:"student_id" validate:"required,max=128"`
	ExamID            string   `json:"exam_id" validate:"required,max=128"`
	ScheduledDuration string   `json:"scheduled_duration" validate:"required"`
	ProctorIDs        []string `json:"proctor_ids" validate:"omitempty,max=32,dive,required,max=128"`
}

func (req ScheduleSessionRequest) toModel() (models.ScheduleRequest, error) {
	d, err := time.ParseDuration(req.ScheduledDuration)
	if err != nil {
		return models.ScheduleRequest{}, models.Errorf(models.ErrMalformedRequest, "scheduled_duration %q is not a duration", req.ScheduledDuration)
	}
	return models.ScheduleRequest{
		SessionID:         req.SessionID,
		StudentID:         req.StudentID,
		ExamID:            req.ExamID,
		ScheduledDuration: d,
		ProctorIDs:        req.ProctorIDs,
	}, nil
}

// CommandRequest is the body of POST /api/v1/sessions/{id}/commands.
type CommandRequest struct {
	Type    string `json:"type" validate:"required,command"`
	Handle  string `json:"handle,omitempty" validate:"omitempty,max=128"`
	Message string `json:"message,omitempty" validate:"omitempty,max=1024"`
}

// IncidentStatusRequest is the body of
// POST /api/v1/sessions/{id}/incidents/{incident_id}/status.
type IncidentStatusRequest struct {
	Status string `json:"status" validate:"required,incident_status"`
	Note   string `json:"note,omitempty" validate:"omitempty,max=1024"`
}

// SubscribeRequest is the body of POST /api/v1/subscriptions. A nil cursor
// starts at the current head.
type SubscribeRequest struct {
	SessionIDs    []string `json:"session_ids" validate:"omitempty,max=1000,dive,required,max=128,entity_id"`
	SeverityFloor string   `json:"severity_floor,omitempty" validate:"omitempty,severity"`
	Cursor        *uint64  `json:"cursor,omitempty"`
}

// SubscribeResponse is returned when a subscription is created.
type SubscribeResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Cursor         uint64 `json:"cursor"`
}
