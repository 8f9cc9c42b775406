// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// histogramCount reads the sample count of one histogram series.
func histogramCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	h, ok := obs.(prometheus.Histogram)
	if !ok {
		t.Fatalf("%T is not a histogram", obs)
	}
	var m io_prometheus_client.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordCommand(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("pause", "accepted"))
	rejectedBefore := testutil.ToFloat64(CommandsTotal.WithLabelValues("pause", "rejected"))

	RecordCommand("pause", true)
	RecordCommand("pause", false)
	RecordCommand("pause", true)

	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("pause", "accepted")) - before; got != 2 {
		t.Errorf("accepted delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CommandsTotal.WithLabelValues("pause", "rejected")) - rejectedBefore; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
}

func TestRecordSignalRejected(t *testing.T) {
	before := testutil.ToFloat64(SignalsRejected.WithLabelValues("clock_skew"))
	RecordSignalRejected("clock_skew")
	if got := testutil.ToFloat64(SignalsRejected.WithLabelValues("clock_skew")) - before; got != 1 {
		t.Errorf("delta = %v, want 1", got)
	}
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(SessionTransitions.WithLabelValues("active", "paused"))
	RecordTransition("active", "paused")
	if got := testutil.ToFloat64(SessionTransitions.WithLabelValues("active", "paused")) - before; got != 1 {
		t.Errorf("delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	series := APIRequestDuration.WithLabelValues("POST", "/api/v1/signals", "202")
	before := histogramCount(t, series)

	RecordAPIRequest("POST", "/api/v1/signals", 202, 3*time.Millisecond)
	RecordAPIRequest("POST", "/api/v1/signals", 202, 40*time.Millisecond)

	if got := histogramCount(t, series) - before; got != 2 {
		t.Errorf("sample delta = %d, want 2", got)
	}
	if n := testutil.CollectAndCount(APIRequestDuration); n == 0 {
		t.Error("expected at least one histogram series")
	}
}

func TestRecordAuthz(t *testing.T) {
	before := testutil.ToFloat64(AuthzDecisions.WithLabelValues("session", "denied"))
	RecordAuthz("session", false)
	if got := testutil.ToFloat64(AuthzDecisions.WithLabelValues("session", "denied")) - before; got != 1 {
		t.Errorf("delta = %v, want 1", got)
	}
}

func TestRecordCircuitBreakerState(t *testing.T) {
	RecordCircuitBreakerState("eventbus", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("eventbus")); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}
}
