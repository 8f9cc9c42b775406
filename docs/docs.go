// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package docs registers the OpenAPI document of the HTTP API with swag.
// swagger.json is written by `go generate ./cmd/server`.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var doc string

type spec struct{}

func (spec) ReadDoc() string { return doc }

func init() {
	swag.Register(swag.Name, spec{})
}
