package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox/payloads"
)

// EventDescriptor says where an event type goes and how its data decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be delivered as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

var catalog = []EventDescriptor{
	{EventType: enums.EventPayoutBatchCreated, AggregateType: enums.AggregatePayoutBatch, PayloadFactory: payloadOf[payloads.PayoutBatchEvent]()},
	{EventType: enums.EventPayoutBatchAdvanced, AggregateType: enums.AggregatePayoutBatch, PayloadFactory: payloadOf[payloads.PayoutBatchEvent]()},
	{EventType: enums.EventPayoutBatchCompleted, AggregateType: enums.AggregatePayoutBatch, PayloadFactory: payloadOf[payloads.PayoutBatchCompletedEvent]()},
	{EventType: enums.EventPayoutBatchFailed, AggregateType: enums.AggregatePayoutBatch, PayloadFactory: payloadOf[payloads.PayoutBatchFailedEvent]()},
	{EventType: enums.EventPayoutBatchDeleted, AggregateType: enums.AggregatePayoutBatch, PayloadFactory: payloadOf[payloads.PayoutBatchEvent]()},
	{EventType: enums.EventVendorBalanceDrift, AggregateType: enums.AggregateVendor, PayloadFactory: payloadOf[payloads.VendorBalanceDriftEvent]()},
}

// EventRegistry routes every settlement event type to the payouts topic.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.PayoutsTopic)
	if topic == "" {
		return nil, errors.New("payouts topic is required")
	}
	entries := make(map[enums.OutboxEventType]EventDescriptor, len(catalog))
	for _, desc := range catalog {
		desc.Topic = topic
		entries[desc.EventType] = desc
	}
	return &EventRegistry{entries: entries}, nil
}

// Resolve checks the row against its descriptor and decodes the typed data.
// Every failure is non-retryable: the row will not change on its own.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, rejectf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("missing aggregate_id")
	}

	resolved := &ResolvedEvent{Descriptor: desc, Payload: desc.PayloadFactory()}
	if err := json.Unmarshal(event.Payload, &resolved.Envelope); err != nil {
		return nil, rejectf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(resolved.Envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, rejectf("payload missing for %s", event.EventType)
	}
	if err := json.Unmarshal(data, resolved.Payload); err != nil {
		return nil, rejectf("decode %s payload: %w", event.EventType, err)
	}
	return resolved, nil
}

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}
