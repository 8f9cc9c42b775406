// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the monitoring pipeline:
// - Signal ingress (accepted, rejected, late drops, duplicates)
// - Incident aggregation and escalation decisions
// - Session transitions and commands
// - Fan-out delivery and backpressure
// - Event bus publishing and API latency

var (
	// Ingress Metrics
	SignalsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_signals_ingested_total",
			Help: "Total number of signals accepted by ingress",
		},
		[]string{"channel"},
	)

	SignalsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_signals_rejected_total",
			Help: "Total number of signals rejected at ingress",
		},
		[]string{"reason"}, // invalid_confidence, clock_skew, unknown_session, ingress_overload
	)

	SignalsDroppedLate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilator_signals_dropped_late_total",
			Help: "Total number of signals dropped for arriving after the lateness window",
		},
	)

	SignalsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilator_signals_duplicate_total",
			Help: "Total number of replayed signal ids ignored",
		},
	)

	IngressQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invigilator_ingress_queue_depth",
			Help: "Signals waiting in reorder buffers across all sessions",
		},
	)

	// Aggregation and Escalation Metrics
	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_incidents_created_total",
			Help: "Total number of incidents opened",
		},
		[]string{"category"},
	)

	IncidentSeverityChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_incident_severity_changes_total",
			Help: "Total number of incident severity increases, by new severity",
		},
		[]string{"severity"},
	)

	EscalationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_escalation_decisions_total",
			Help: "Total number of escalation decisions by action",
		},
		[]string{"action"},
	)

	// Session Metrics
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_commands_total",
			Help: "Total number of Session Control commands by outcome",
		},
		[]string{"command", "status"},
	)

	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_authz_decisions_total",
			Help: "Total number of authorization decisions by object and result",
		},
		[]string{"object", "result"},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_auth_failures_total",
			Help: "Requests rejected during authentication by reason",
		},
		[]string{"mode", "reason"},
	)

	AuthzCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilator_authz_cache_hits_total",
			Help: "Authorization decisions served from the decision cache",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invigilator_active_sessions",
			Help: "Number of session workers currently running",
		},
	)

	WorkerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilator_worker_restarts_total",
			Help: "Total number of session worker restarts after a fault",
		},
	)

	// Fan-out Metrics
	FanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_fanout_events_total",
			Help: "Total number of events published to the subscription hub",
		},
		[]string{"type"},
	)

	FanoutDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_fanout_dropped_total",
			Help: "Total number of low-priority events dropped under backpressure",
		},
		[]string{"reason"}, // oldest_low, incoming_low
	)

	FanoutStalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invigilator_fanout_stalls_total",
			Help: "Total number of times a subscriber was stalled",
		},
	)

	FanoutDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_fanout_disconnects_total",
			Help: "Total number of subscriber disconnects",
		},
		[]string{"reason"}, // stall_timeout, log_truncated, cursor_expired, unsubscribe, shutdown
	)

	FanoutSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invigilator_fanout_subscribers",
			Help: "Number of live subscriptions",
		},
	)

	// Event Bus Metrics
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_eventbus_published_total",
			Help: "Total number of events forwarded to the external bus",
		},
		[]string{"status"}, // success, error, circuit_open
	)

	EventBusSignalsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invigilator_eventbus_signals_consumed_total",
			Help: "Total number of detector signals consumed from the bus",
		},
		[]string{"status"}, // accepted, rejected, retried
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "invigilator_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invigilator_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route", "status"},
	)
)

// RecordSignalRejected records an ingress rejection by reason.
func RecordSignalRejected(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordCommand records a Session Control command outcome.
func RecordCommand(command string, accepted bool) {
	status := "rejected"
	if accepted {
		status = "accepted"
	}
	CommandsTotal.WithLabelValues(command, status).Inc()
}

// RecordAuthz records one authorization decision.
func RecordAuthz(object string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	AuthzDecisions.WithLabelValues(object, result).Inc()
}

// RecordTransition records a session state transition.
func RecordTransition(from, to string) {
	SessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordCircuitBreakerState records a breaker transition as a gauge value.
func RecordCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
