// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package main

// Regenerates docs/swagger.json from the handler annotations.
//go:generate swag init -g docs.go -d ./,../../internal/api,../../internal/models,../../internal/ingress,../../internal/audit -o ../../docs --outputTypes json

// @title Invigilator API
// @version 1.0
// @description Exam integrity monitoring: signal intake, incident correlation, escalation policy, session control and live event subscriptions.
//
// @contact.name GitHub Repository
// @contact.url https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8087
// @BasePath /
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description HS256 JWT as "Bearer <token>".
