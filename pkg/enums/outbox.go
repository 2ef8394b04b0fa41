package enums

import "slices"

// OutboxAggregateType identifies the record an outbox event describes.
type OutboxAggregateType string

const (
	AggregatePayoutBatch OutboxAggregateType = "payout_batch"
	AggregateVendor      OutboxAggregateType = "vendor"
)

var aggregateTypes = []OutboxAggregateType{AggregatePayoutBatch, AggregateVendor}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

// OutboxEventType names a committed settlement transition.
type OutboxEventType string

const (
	EventPayoutBatchCreated   OutboxEventType = "payout_batch_created"
	EventPayoutBatchAdvanced  OutboxEventType = "payout_batch_advanced"
	EventPayoutBatchCompleted OutboxEventType = "payout_batch_completed"
	EventPayoutBatchFailed    OutboxEventType = "payout_batch_failed"
	EventPayoutBatchDeleted   OutboxEventType = "payout_batch_deleted"
	EventVendorBalanceDrift   OutboxEventType = "vendor_balance_drift_corrected"
)

var eventTypes = []OutboxEventType{
	EventPayoutBatchCreated,
	EventPayoutBatchAdvanced,
	EventPayoutBatchCompleted,
	EventPayoutBatchFailed,
	EventPayoutBatchDeleted,
	EventVendorBalanceDrift,
}

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, eventTypes)
}
