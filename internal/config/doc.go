// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package config loads and validates Invigilator configuration.

# Configuration Sources

LoadWithKoanf layers three sources, later ones overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, then config.yaml, config.yml,
    /etc/invigilator/config.yaml, /etc/invigilator/config.yml
 3. Environment variables, mapped explicitly (unknown variables are ignored)

Durations accept Go syntax ("5s", "10m"). CORS_ORIGINS is comma separated.

# Sections

  - server: HTTP_HOST, HTTP_PORT (8087), HTTP_TIMEOUT, ENVIRONMENT
  - logging: LOG_LEVEL, LOG_FORMAT, LOG_CALLER
  - ingress: INGRESS_CLOCK_SKEW_TOLERANCE (30s), INGRESS_LATENESS_WINDOW (5s),
    INGRESS_QUEUE_SIZE, INGRESS_DEDUP_CAPACITY, INGRESS_DEDUP_TTL,
    INGRESS_RATE_PER_SESSION, INGRESS_BURST
  - aggregation: correlation gap and the severity thresholds
  - escalation: the default policy table; per-exam overrides live under
    escalation.exams in the YAML file
  - session: SESSION_TERMINATION_TTL (60s), SESSION_RETENTION,
    SESSION_TICK_INTERVAL, SESSION_COMMAND_TIMEOUT
  - fanout: subscriber buffer, stall timeout and event log retention
  - storage: STORAGE_BACKEND (badger, memory), STORAGE_PATH
  - audit: AUDIT_ENABLED, AUDIT_RETENTION_DAYS, AUDIT_BUFFER_SIZE
  - security: AUTH_MODE (jwt, header), JWT_SECRET, rate limits, CORS, casbin
  - eventbus: EVENTBUS_ENABLED, EVENTBUS_BACKEND (gochannel, nats), NATS_*
  - supervisor: suture failure threshold, decay, backoff and shutdown timeout

# Per-exam Policies

	escalation:
	  policy_version: "2026.10.1"
	  medium_burst_count: 3
	  exams:
	    final-chem-101:
	      policy_version: "2026.10.1-strict"
	      medium_burst_count: 2
	      medium_burst_window: 15m

Zero fields of an override inherit the default. Exam IDs must not contain
dots, which koanf uses as its path delimiter.

# Hot Reload

WatchConfigFile reports changes to the YAML file. The server reloads with
LoadFile and installs changed exam overrides into the live policy book;
other sections take effect on restart.

# Validation

Validate rejects inconsistent values before anything starts. In production
it also rejects AUTH_MODE=header and wildcard CORS. JWT mode requires a
JWT_SECRET of at least 32 characters that is not a placeholder.
*/
package config
