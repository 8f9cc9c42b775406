// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package models

import "time"

// Channel is the detector channel a signal was observed on.
type Channel string

const (
	ChannelVideo      Channel = "video"
	ChannelAudio      Channel = "audio"
	ChannelScreen     Channel = "screen"
	ChannelNavigation Channel = "navigation"
)

// ChannelGroup is the correlation key for incidents. Video and screen share
// a group; audio and navigation are independent.
type ChannelGroup string

const (
	GroupVisual     ChannelGroup = "visual"
	GroupAudio      ChannelGroup = "audio"
	GroupNavigation ChannelGroup = "navigation"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVideo, ChannelAudio, ChannelScreen, ChannelNavigation:
		return true
	}
	return false
}

// Group returns the correlation group for c.
func (c Channel) Group() ChannelGroup {
	switch c {
	case ChannelVideo, ChannelScreen:
		return GroupVisual
	case ChannelAudio:
		return GroupAudio
	default:
		return GroupNavigation
	}
}

// Signal is one observation from a detector. Immutable once ingested.
type Signal struct {
	ID          string    `json:"signal_id"`
	SessionID   string    `json:"session_id"`
	Channel     Channel   `json:"channel"`
	Confidence  float64   `json:"confidence"`
	DetectedAt  time.Time `json:"detected_at"`
	ReceivedAt  time.Time `json:"received_at"`
	EvidenceRef string    `json:"evidence_ref,omitempty"`

	// Sequence is assigned at acceptance and increases per session.
	Sequence uint64 `json:"sequence"`
}

// ReceiptStatus is the ingress outcome for one submitted signal.
type ReceiptStatus string

const (
	ReceiptAccepted    ReceiptStatus = "accepted"
	ReceiptDuplicate   ReceiptStatus = "duplicate"
	ReceiptDroppedLate ReceiptStatus = "dropped_late"
)

// Receipt is returned by ingress for every signal that passed validation.
type Receipt struct {
	SignalID  string        `json:"signal_id"`
	SessionID string        `json:"session_id"`
	Sequence  uint64        `json:"sequence,omitempty"`
	Status    ReceiptStatus `json:"status"`
}
