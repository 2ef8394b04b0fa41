package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveEvent("payout_batch_created", OutboxDelivered)
	m.ObserveEvent("payout_batch_created", OutboxDelivered)
	m.ObserveEvent("payout_batch_completed", OutboxParked)
	m.IncFailedPoll()

	mfs := gather(t, reg)
	require.Equal(t, 2.0, series(t, mfs, "payouts_outbox_events_total",
		map[string]string{"event_type": "payout_batch_created", "outcome": OutboxDelivered}).GetCounter().GetValue())
	require.Equal(t, 1.0, series(t, mfs, "payouts_outbox_events_total",
		map[string]string{"event_type": "payout_batch_completed", "outcome": OutboxParked}).GetCounter().GetValue())
	require.Equal(t, 1.0, findMetricFamily(mfs, "payouts_outbox_failed_polls_total").GetMetric()[0].GetCounter().GetValue())
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.ObserveEvent("x", OutboxRetrying)
	m.IncFailedPoll()
	NewOutboxMetrics(nil).ObserveEvent("x", OutboxDelivered)
}
