// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package api is the HTTP surface: signal ingress for detectors, Session
Control for proctors and admins, and the subscription API for viewers.

# Routes

	POST   /api/v1/signals                                   detector, admin
	POST   /api/v1/sessions                                  admin
	GET    /api/v1/sessions                                  any role; students see their own
	GET    /api/v1/sessions/{id}                             any role; students their own
	GET    /api/v1/sessions/{id}/incidents                   proctor, admin
	GET    /api/v1/sessions/{id}/decisions                   proctor, admin
	GET    /api/v1/sessions/{id}/audit                       proctor, admin
	POST   /api/v1/sessions/{id}/commands                    per command type
	POST   /api/v1/sessions/{id}/incidents/{incident_id}/status
	POST   /api/v1/subscriptions
	GET    /api/v1/subscriptions/{id}/events?cursor=N&limit=M
	GET    /api/v1/subscriptions/{id}/stream                 websocket
	DELETE /api/v1/subscriptions/{id}
	GET    /api/v1/stats
	GET    /api/v1/audit
	GET    /health, /health/live, /health/ready, /metrics

# Responses

Every JSON body uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "INVALID_TRANSITION", "message": "..."}, "meta": {...}}

Domain errors map to status by kind: validation 400, unauthorized 403,
not_found 404, state_conflict 409, timeout 408, transient_overload 429 with
Retry-After, internal 500. unknown_session is 404 and confirmation_expired
is 409. Rejected commands keep their CommandResult in data.

# Middleware

	RequestID -> RealIP -> Recoverer -> CORS
	/api/v1: security headers -> Prometheus -> auth -> per-actor rate limit

Role checks use the Casbin policy through Session Control, which audits
every denial. Ownership of a session or subscription is checked here.
*/
package api
