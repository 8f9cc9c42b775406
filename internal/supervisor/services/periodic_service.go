// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package services

import (
	"context"
	"time"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/logging"
)

// PeriodicService runs a maintenance task on a fixed interval, for example
// badger value log GC. A failing run is logged and retried on the next
// tick; it never restarts the service.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewPeriodicService creates a service that runs task every interval.
// A non-positive interval defaults to five minutes.
func NewPeriodicService(name string, interval time.Duration, task func(ctx context.Context) error) *PeriodicService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PeriodicService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.task(ctx); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("maintenance run failed")
				continue
			}
			logging.Debug().Str("service", s.name).Dur("took", time.Since(start)).Msg("maintenance run complete")
		}
	}
}

func (s *PeriodicService) String() string {
	return s.name
}
