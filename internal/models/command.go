// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import "time"

// CommandType is a Session Control command.
type CommandType string

const (
	CommandActivate           CommandType = "activate"
	CommandPause              CommandType = "pause"
	CommandResume             CommandType = "resume"
	CommandWarn               CommandType = "warn"
	CommandRequestTermination CommandType = "request_termination"
	CommandConfirmTermination CommandType = "confirm_termination"
	CommandSubmit             CommandType = "submit"
)

// Valid reports whether c is a known command.
func (c CommandType) Valid() bool {
	switch c {
	case CommandActivate, CommandPause, CommandResume, CommandWarn,
		CommandRequestTermination, CommandConfirmTermination, CommandSubmit:
		return true
	}
	return false
}

// Command is a request to change one session.
type Command struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
	Actor     Actor       `json:"actor"`
	Handle    string      `json:"handle,omitempty"`
	Message   string      `json:"message,omitempty"`
}

// IncidentUpdate is a request to change an incident's review status.
type IncidentUpdate struct {
	SessionID  string         `json:"session_id"`
	IncidentID string         `json:"incident_id"`
	Status     IncidentStatus `json:"status"`
	Note       string         `json:"note,omitempty"`
	Actor      Actor          `json:"actor"`
}

// CommandStatus is accepted or rejected.
type CommandStatus string

const (
	CommandAccepted CommandStatus = "accepted"
	CommandRejected CommandStatus = "rejected"
)

// CommandResult is returned synchronously for every command. A rejection
// always carries a machine-readable Reason.
type CommandResult struct {
	Status   CommandStatus      `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	Message  string             `json:"message,omitempty"`
	Session  *ExamSession       `json:"session,omitempty"`
	Handle   *TerminationHandle `json:"handle,omitempty"`
	Incident *Incident          `json:"incident,omitempty"`
}

// Accepted reports whether the command took effect.
func (r CommandResult) Accepted() bool { return r.Status == CommandAccepted }

// Rejected builds a rejected result from err.
func Rejected(err error) CommandResult {
	e := AsError(err)
	return CommandResult{Status: CommandRejected, Reason: e.Reason, Message: e.Message}
}

// ScheduleRequest admits a new session in the scheduled state.
type ScheduleRequest struct {
	SessionID         string        `json:"session_id"`
	StudentID         string        `json:"student_id"`
	ExamID            string        `json:"exam_id"`
	ScheduledDuration time.Duration `json:"scheduled_duration"`
	ProctorIDs        []string      `json:"proctor_ids"`
}
