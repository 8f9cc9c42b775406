// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package main is the entry point for the Invigilator server.

Invigilator ingests integrity signals from exam-time detectors, correlates
them into incidents per exam session, evaluates escalation policy and lets
proctors act on sessions. Every change is published to live subscribers.

# Application Architecture

	RootSupervisor ("invigilator")
	├── DataSupervisor ("data-layer")
	│   ├── store-gc (badger value log GC)
	│   └── audit-cleanup (retention)
	├── SessionSupervisor ("session-layer")
	│   ├── session-engine (recovery, then timer ticks)
	│   ├── ingress-dedup-sweep
	│   └── session-worker:<id> (one per live session)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── fanout-hub
	│   ├── eventbus-forwarder (optional)
	│   └── eventbus-signal-consumer (optional)
	└── APISupervisor ("api-layer")
	    └── http-server

Initialization order:

 1. Configuration: koanf (defaults, YAML file, environment)
 2. Logging: zerolog
 3. Storage: badger (sessions and audit share one database) or memory
 4. Audit log, casbin enforcer, fan-out hub, policy book
 5. Session engine, ingress gateway, session control
 6. Authentication middleware and chi router
 7. Event bus (optional)
 8. Supervisor tree

# Configuration

	HTTP_PORT=8087
	LOG_LEVEL=info
	AUTH_MODE=jwt                 # jwt or header
	JWT_SECRET=<32+ chars>
	STORAGE_BACKEND=badger        # badger or memory
	STORAGE_PATH=/data/invigilator
	EVENTBUS_ENABLED=false
	EVENTBUS_BACKEND=nats         # nats or gochannel

See internal/config for the complete list. Per-exam escalation overrides in
the YAML file are reloaded when the file changes.

# HTTP API

	GET    /health, /health/live, /health/ready, /metrics
	POST   /api/v1/signals
	POST   /api/v1/sessions
	GET    /api/v1/sessions[/{id}[/incidents|/decisions|/audit]]
	POST   /api/v1/sessions/{id}/commands
	POST   /api/v1/sessions/{id}/incidents/{incident_id}/status
	POST   /api/v1/subscriptions
	GET    /api/v1/subscriptions/{id}/events
	GET    /api/v1/subscriptions/{id}/stream (websocket)
	DELETE /api/v1/subscriptions/{id}
	GET    /api/v1/stats, /api/v1/audit

The OpenAPI reference is served at /swagger/index.html. After changing a
handler's annotations run `go generate ./cmd/server` to rewrite
docs/swagger.json.

# Signal Handling

On SIGINT or SIGTERM the tree cancels every service: the HTTP server drains,
session workers persist and stop, and the event bus and badger database are
closed after the tree has stopped. Services that miss the shutdown timeout
are reported.

# Usage

Development:

	export AUTH_MODE=header STORAGE_BACKEND=memory
	go run ./cmd/server

Production:

	export ENVIRONMENT=production
	export JWT_SECRET=$(openssl rand -base64 32)
	export CORS_ORIGINS=https://proctor.example.edu
	./invigilator
*/
package main
