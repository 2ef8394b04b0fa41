package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox delivery outcomes.
const (
	OutboxDelivered = "delivered"
	OutboxRetrying  = "retrying"
	OutboxParked    = "parked"
)

// OutboxMetrics counts what the publisher did with each settlement event.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	polls  prometheus.Counter
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_outbox_events_total",
			Help: "Outbox events handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payouts_outbox_failed_polls_total",
			Help: "Publisher polls that failed before any event was handled.",
		}),
	}
	reg.MustRegister(m.events, m.polls)
	return m
}

// ObserveEvent records one handled row.
func (o *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (o *OutboxMetrics) IncFailedPoll() {
	if o == nil || o.polls == nil {
		return
	}
	o.polls.Inc()
}
