package chat

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by the chat services.
type Metrics struct {
	Mutations     *prometheus.CounterVec
	Conflicts     *prometheus.CounterVec
	Malformed     *prometheus.CounterVec
	AuditFailures prometheus.Counter
	Swept         prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trailchat",
			Subsystem: "chat",
			Name:      "mutations_total",
			Help:      "Chat store operations by name and outcome.",
		}, []string{"op", "outcome"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trailchat",
			Subsystem: "chat",
			Name:      "tx_conflicts_total",
			Help:      "Optimistic transactions aborted because a watched key changed.",
		}, []string{"op"}),
		Malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trailchat",
			Subsystem: "chat",
			Name:      "malformed_records_total",
			Help:      "Undecodable entries skipped while scanning a log.",
		}, []string{"log"}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trailchat",
			Subsystem: "chat",
			Name:      "audit_emit_failures_total",
			Help:      "Audit stream appends that failed after the mutation succeeded.",
		}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trailchat",
			Subsystem: "chat",
			Name:      "deleted_records_swept_total",
			Help:      "Quarantined records purged after the retention window.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Mutations, m.Conflicts, m.Malformed, m.AuditFailures, m.Swept)
	}
	return m
}

func (m *Metrics) observe(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrInvalidInput):
		outcome = "invalid"
	case errors.Is(err, ErrConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	m.Mutations.WithLabelValues(op, outcome).Inc()
}
