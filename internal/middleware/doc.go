// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

/*
Package middleware provides HTTP middleware shared by the API router.

  - RequestID: X-Request-ID propagation plus request and correlation ids in
    the logging context
  - PrometheusMetrics: request latency by method, chi route pattern and status

Both are chi-style func(http.Handler) http.Handler values:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Routes are labelled by their pattern (/api/v1/sessions/{id}), never by the
raw path, so session ids do not explode label cardinality.
*/
package middleware
