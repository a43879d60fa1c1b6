// Package metrics exposes Prometheus counters for the lifecycle core.
// Metrics are served on /metrics by the API layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opscheck"

// TransitionsTotal counts lifecycle operation attempts.
// Labels: operation (acknowledge, submit_action, verify, resolve, waive,
// legacy_resolve), outcome (success, validation, state, accountability,
// conflict, not_found, fault).
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Lifecycle operation attempts by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// EventsAppendedTotal counts rows appended to the violation event log.
// Labels: event_type.
var EventsAppendedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "events_appended_total",
		Help:      "Violation events appended to the log by event type.",
	},
	[]string{"event_type"},
)
