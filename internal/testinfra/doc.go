// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

//go:build integration

// Package testinfra starts external dependencies in Docker for integration
// tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/eventbus/...
//
// Tests call SkipIfNoDocker first so the suite degrades to a skip on hosts
// without Docker.
package testinfra
