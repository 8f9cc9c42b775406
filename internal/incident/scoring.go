// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package incident

import (
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

// Config holds correlation and scoring thresholds.
type Config struct {
	// CorrelationGap is how long after LastSeen a new signal may still join.
	CorrelationGap time.Duration

	// MinConfidence is the floor below which signals never open or extend an incident.
	MinConfidence float64

	MediumConfidence           float64
	HighConfidence             float64
	MultiChannelHighConfidence float64
	MediumSignalCount          int
	HighSignalCount            int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		CorrelationGap:             10 * time.Second,
		MinConfidence:              0.3,
		MediumConfidence:           0.6,
		HighConfidence:             0.9,
		MultiChannelHighConfidence: 0.75,
		MediumSignalCount:          3,
		HighSignalCount:            8,
	}
}

// Score maps (max confidence, distinct channels, signal count) to a
// severity. It is monotone non-decreasing in every argument.
func (c Config) Score(maxConfidence float64, channels, signals int) models.Severity {
	switch {
	case maxConfidence >= c.HighConfidence,
		channels >= 2 && maxConfidence >= c.MultiChannelHighConfidence,
		signals >= c.HighSignalCount:
		return models.SeverityHigh
	case maxConfidence >= c.MediumConfidence,
		channels >= 2,
		signals >= c.MediumSignalCount:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
