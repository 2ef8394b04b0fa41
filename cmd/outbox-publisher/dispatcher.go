package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/metrics"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox/registry"
	"github.com/angelmondragon/vendor-payouts/pkg/pubsub"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
)

type txRunner interface {
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	ClaimDeliverable(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkDelivered(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sink is the broker side of the publisher; *pubsub.Client satisfies it.
type sink interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type deliveryMetrics interface {
	ObserveEvent(eventType, outcome string)
	IncFailedPoll()
}

// DispatcherParams wires the outbox publisher.
type DispatcherParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository eventStore
	Registry   eventResolver
	Sink       sink
	Metrics    deliveryMetrics
	Outbox     config.OutboxConfig
	// Checks run once before the first poll; any failure aborts Run.
	Checks map[string]func(context.Context) error
}

// Dispatcher ships committed settlement events to Pub/Sub. Events are
// at-least-once: a crash between the ack and the commit resends the row.
type Dispatcher struct {
	logg        *logger.Logger
	db          txRunner
	repo        eventStore
	registry    eventResolver
	sink        sink
	metrics     deliveryMetrics
	checks      map[string]func(context.Context) error
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
	jitter      func(time.Duration) time.Duration
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Sink == nil:
		return nil, errors.New("pubsub sink is required")
	}

	d := &Dispatcher{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		registry:    params.Registry,
		sink:        params.Sink,
		metrics:     params.Metrics,
		checks:      params.Checks,
		batchSize:   params.Outbox.BatchSize,
		maxAttempts: params.Outbox.MaxAttempts,
		poll:        time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
		jitter:      withJitter,
	}
	if d.metrics == nil {
		d.metrics = metrics.NewOutboxMetrics(nil)
	}
	if d.batchSize <= 0 {
		d.batchSize = defaultBatchSize
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = defaultMaxAttempts
	}
	if d.poll <= 0 {
		d.poll = defaultPoll
	}
	return d, nil
}

// Run polls until ctx is canceled. A full batch is followed immediately by the
// next poll; an empty one waits a poll interval; a failed one backs off.
func (d *Dispatcher) Run(ctx context.Context) error {
	for name, check := range d.checks {
		if err := check(ctx); err != nil {
			d.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := d.poll
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := d.drain(ctx)
		switch {
		case err != nil:
			d.metrics.IncFailedPoll()
			d.logg.Error(ctx, "outbox poll failed", err)
			wait = nextBackoff(wait, d.poll, maxBackoff)
		case handled == d.batchSize:
			wait = d.poll
			continue
		default:
			wait = d.poll
		}

		if err := sleep(ctx, d.jitter(wait)); err != nil {
			return err
		}
	}
}

// drain ships one claimed batch and reports how many rows it handled.
func (d *Dispatcher) drain(ctx context.Context) (int, error) {
	handled := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.repo.ClaimDeliverable(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		for _, row := range rows {
			outcome, err := d.dispatch(ctx, tx, row)
			if err != nil {
				return err
			}
			d.metrics.ObserveEvent(string(row.EventType), outcome)
			handled++
		}
		return nil
	})
	return handled, err
}

func (d *Dispatcher) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	resolved, err := d.registry.Resolve(row)
	if err != nil {
		return d.park(d.logg.WithFields(ctx, rowFields(row, nil)), tx, row, err)
	}
	logCtx := d.logg.WithFields(ctx, rowFields(row, resolved))

	_, sendErr := d.sink.Send(ctx, resolved.Descriptor.Topic, message(row, resolved))
	if sendErr == nil {
		if err := d.repo.MarkDelivered(tx, row.ID, d.now()); err != nil {
			return "", fmt.Errorf("mark delivered %s: %w", row.ID, err)
		}
		d.logg.Info(logCtx, "settlement event published")
		return metrics.OutboxDelivered, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(sendErr, &nonRetryable) || errors.Is(sendErr, pubsub.ErrTopicMissing) {
		return d.park(logCtx, tx, row, sendErr)
	}
	if row.AttemptCount+1 >= d.maxAttempts {
		return d.park(logCtx, tx, row, fmt.Errorf("max publish attempts reached: %w", sendErr))
	}

	if err := d.repo.RecordFailure(tx, row.ID, sendErr); err != nil {
		return "", fmt.Errorf("record failure %s: %w", row.ID, err)
	}
	d.logg.Warn(d.logg.WithFields(logCtx, map[string]any{
		"error":         sendErr.Error(),
		"attempt_count": row.AttemptCount + 1,
	}), "settlement event publish failed, will retry")
	return metrics.OutboxRetrying, nil
}

// park stops delivery for the row. It stays in the table for inspection until
// the retention job removes it.
func (d *Dispatcher) park(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, cause error) (string, error) {
	if err := d.repo.Park(tx, row.ID, cause, d.maxAttempts); err != nil {
		return "", fmt.Errorf("park %s: %w", row.ID, err)
	}
	d.logg.Warn(d.logg.WithField(ctx, "error", cause.Error()), "settlement event parked")
	return metrics.OutboxParked, nil
}

func message(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	switch row.AggregateType {
	case enums.AggregatePayoutBatch:
		attrs["batch_id"] = row.AggregateID.String()
	case enums.AggregateVendor:
		attrs["vendor_id"] = row.AggregateID.String()
	}
	if actor := resolved.Envelope.Actor; actor != nil {
		attrs["actor_user_id"] = actor.UserID
		if actor.Role != "" {
			attrs["actor_role"] = actor.Role
		}
	}
	return &gcppubsub.Message{Data: row.Payload, Attributes: attrs}
}

func rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    string(row.EventType),
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"] = resolved.Envelope.EventID
		fields["topic"] = resolved.Descriptor.Topic
	}
	return fields
}
