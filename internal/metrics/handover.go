// Package metrics exposes Prometheus collectors for the handover core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handover_sessions_active",
		Help: "Current number of live sessions by role",
	}, []string{"role"})

	WaitingRequesters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "handover_waiting_requesters",
		Help: "Current number of requesters awaiting an operator by tenant",
	}, []string{"tenant"})

	PairingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_pairings_total",
		Help: "Total number of established requester/operator pairings by tenant",
	}, []string{"tenant"})

	PairingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "handover_pairings_active",
		Help: "Current number of active pairings",
	})

	SearchTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handover_search_timeouts_total",
		Help: "Total number of operator searches that exhausted their budget",
	})

	SearchAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handover_search_aborts_total",
		Help: "Total number of operator searches cancelled by disconnect or shutdown",
	})

	RelayedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_relayed_messages_total",
		Help: "Total number of messages forwarded between paired sessions by sender role",
	}, []string{"role"})

	NoticesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handover_notices_total",
		Help: "Total number of info notices sent to sessions",
	})

	AutomatedRepliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handover_automated_replies_total",
		Help: "Total number of replies produced by the automated responder",
	})

	ResponderFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handover_responder_failures_total",
		Help: "Total number of automated responder calls that produced no reply",
	})
)

// SessionOpened records a newly accepted session.
func SessionOpened(role string) {
	SessionsActive.WithLabelValues(role).Inc()
}

// SessionClosed records a torn-down session.
func SessionClosed(role string) {
	SessionsActive.WithLabelValues(role).Dec()
}

// PairingEstablished records a successful pairing for the tenant.
func PairingEstablished(tenant string) {
	PairingsTotal.WithLabelValues(tenant).Inc()
	PairingsActive.Inc()
}

// PairingTorndown records the end of an active pairing.
func PairingTorndown() {
	PairingsActive.Dec()
}

// SetWaiting records the current waiting-pool depth for the tenant.
func SetWaiting(tenant string, depth int) {
	WaitingRequesters.WithLabelValues(tenant).Set(float64(depth))
}
