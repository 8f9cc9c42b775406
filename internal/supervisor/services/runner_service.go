// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package services

import (
	"context"
)

// ContextRunner is a component with a blocking, context-aware run loop,
// such as *engine.Engine or *fanout.Hub.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.Service.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService wraps runner under name.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// NewEngineService names the session engine's run loop.
func NewEngineService(engine ContextRunner) *RunnerService {
	return NewRunnerService("session-engine", engine)
}

// NewHubService names the fan-out hub's run loop.
func NewHubService(hub ContextRunner) *RunnerService {
	return NewRunnerService("fanout-hub", hub)
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

func (s *RunnerService) String() string {
	return s.name
}

// RunFunc adapts a plain run loop, such as (*audit.Logger).RunCleanup, to
// ContextRunner.
type RunFunc func(ctx context.Context) error

// RunWithContext calls f.
func (f RunFunc) RunWithContext(ctx context.Context) error { return f(ctx) }
