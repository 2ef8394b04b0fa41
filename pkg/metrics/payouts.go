package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PayoutMetrics records settlement transitions and the money they move.
type PayoutMetrics struct {
	transitions *prometheus.CounterVec
	settled     prometheus.Counter
	drift       prometheus.Counter
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_batch_transitions_total",
		Help: "Payout batch operations by outcome.",
	}, []string{"operation", "outcome"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_settled_cents_total",
		Help: "Vendor earnings marked paid, in cents.",
	})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_balance_corrections_total",
		Help: "Vendor balance caches rewritten by reconciliation.",
	})
	reg.MustRegister(transitions, settled, drift)
	return &PayoutMetrics{
		transitions: transitions,
		settled:     settled,
		drift:       drift,
	}
}

// ObserveTransition counts one operation attempt with its outcome.
func (p *PayoutMetrics) ObserveTransition(operation, outcome string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// AddSettled adds paid-out cents.
func (p *PayoutMetrics) AddSettled(cents int64) {
	if p == nil || p.settled == nil || cents <= 0 {
		return
	}
	p.settled.Add(float64(cents))
}

// AddCorrections counts vendor caches fixed by reconciliation.
func (p *PayoutMetrics) AddCorrections(count int) {
	if p == nil || p.drift == nil || count <= 0 {
		return
	}
	p.drift.Add(float64(count))
}
