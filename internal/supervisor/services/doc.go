// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package services adapts components to suture.Service.

  - HTTPServerService drives ListenAndServe/Shutdown.
  - RunnerService drives a RunWithContext loop: the session engine, the
    fan-out hub, or any function through RunFunc (audit retention).
  - PeriodicService runs a maintenance task on an interval (store GC).

The event bus forwarder and signal consumer, and session workers, already
implement suture.Service and are added to the tree directly.
*/
package services
