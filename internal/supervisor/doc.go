// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package supervisor runs every long-lived component under a suture v4 tree.

	Tree ("invigilator")
	├── data-layer
	│   ├── store-gc            badger value log GC (badger backend only)
	│   └── audit-cleanup       audit retention
	├── session-layer
	│   ├── session-worker:<id> one worker per exam session
	│   ├── session-engine      recovery, then ticks for elapsed time,
	│   │                       lateness and retention
	│   └── ingress-dedup-sweep expires signal dedup entries
	├── messaging-layer
	│   ├── fanout-hub
	│   ├── eventbus-forwarder  (eventbus.enabled)
	│   └── eventbus-signal-consumer (eventbus.enabled)
	└── api-layer
	    └── http-server

A session worker that panics is restarted by the session layer from its
durable record while every other session keeps running. Supervisor events
are logged through sutureslog and the zerolog slog adapter.

The adapters for components that are not suture services themselves live in
the services subpackage.
*/
package supervisor
