// Package metrics exposes prometheus counters for the session layer.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sessiongate"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeJoined  = "joined"
)

type Metrics struct {
	refreshes     *prometheus.CounterVec
	retries       prometheus.Counter
	invalidations prometheus.Counter
	transitions   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Token refresh calls by outcome; joined counts callers that attached to an in-flight refresh.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests retried once after an unauthorized response.",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_invalidations_total",
			Help:      "Sessions cleared without a user-initiated logout.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Authentication phase transitions by target phase.",
		}, []string{"phase"}),
	}
	reg.MustRegister(m.refreshes, m.retries, m.invalidations, m.transitions)
	return m
}

func (m *Metrics) RefreshCompleted(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RequestRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) SessionInvalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

func (m *Metrics) PhaseEntered(phase string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(phase).Inc()
}
