package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/metrics"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox"
	"github.com/angelmondragon/vendor-payouts/pkg/pagination"
)

// Service is the administrative surface of the settlement engine.
type Service interface {
	ListVendorBalances(ctx context.Context) ([]VendorBalance, error)
	CreateBatch(ctx context.Context, input CreateBatchInput) (uuid.UUID, error)
	ListBatches(ctx context.Context) ([]models.PayoutBatch, error)
	ListBatchPage(ctx context.Context, params pagination.Params) (*BatchPage, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (*models.PayoutBatch, error)
	AdvanceBatch(ctx context.Context, batchID uuid.UUID) error
	FinalizeBatch(ctx context.Context, batchID uuid.UUID, utrByVendor map[uuid.UUID]string) error
	FailBatch(ctx context.Context, batchID uuid.UUID, reason string) error
	DeleteBatch(ctx context.Context, batchID uuid.UUID) error
	GetVendorPayoutHistory(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutBatch, error)
	ReconcileBalances(ctx context.Context) (*ReconcileReport, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SequenceStore hands out monotonically increasing counters for batch numbers.
type SequenceStore interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

type payoutMetrics interface {
	ObserveTransition(operation, outcome string)
	AddSettled(cents int64)
	AddCorrections(count int)
}

// ServiceParams wires the settlement engine.
type ServiceParams struct {
	Repository  Repository
	DB          txRunner
	Outbox      outboxPublisher
	Logger      *logger.Logger
	Policy      Policy
	BatchPrefix string
	Sequence    SequenceStore
	Metrics     payoutMetrics
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	policy   Policy
	prefix   string
	sequence SequenceStore
	metrics  payoutMetrics
	now      func() time.Time
}

// NewService validates dependencies and returns the settlement engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.Policy.fulfillment) == 0 {
		return nil, fmt.Errorf("payout policy required")
	}
	prefix := strings.TrimSpace(params.BatchPrefix)
	if prefix == "" {
		prefix = "PB"
	}
	var recorder payoutMetrics = metrics.NewPayoutMetrics(nil)
	if params.Metrics != nil {
		recorder = params.Metrics
	}
	return &service{
		repo:     params.Repository,
		tx:       params.DB,
		outbox:   params.Outbox,
		logg:     params.Logger,
		policy:   params.Policy,
		prefix:   prefix,
		sequence: params.Sequence,
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

func (s *service) GetBatch(ctx context.Context, batchID uuid.UUID) (*models.PayoutBatch, error) {
	if batchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	return s.loadBatch(ctx, s.repo, batchID)
}

func (s *service) ListBatches(ctx context.Context) ([]models.PayoutBatch, error) {
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout batches")
	}
	return batches, nil
}

func (s *service) ListBatchPage(ctx context.Context, params pagination.Params) (*BatchPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	batches, err := s.repo.ListBatchPage(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout batches")
	}

	batches, next := pagination.Trim(batches, params.Limit, func(b models.PayoutBatch) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	return &BatchPage{Batches: NewBatchViews(batches), NextCursor: next}, nil
}

func (s *service) GetVendorPayoutHistory(ctx context.Context, vendorID uuid.UUID) ([]models.PayoutBatch, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if _, err := s.loadVendor(ctx, s.repo, vendorID); err != nil {
		return nil, err
	}
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout batches")
	}
	history := make([]models.PayoutBatch, 0)
	for _, batch := range batches {
		if batch.IncludesVendor(vendorID) {
			history = append(history, batch)
		}
	}
	return history, nil
}

func (s *service) loadBatch(ctx context.Context, repo Repository, batchID uuid.UUID) (*models.PayoutBatch, error) {
	batch, err := repo.FindBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout batch not found").
				WithDetails(map[string]any{"batch_id": batchID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout batch")
	}
	return batch, nil
}

func (s *service) loadVendor(ctx context.Context, repo Repository, vendorID uuid.UUID) (*models.Vendor, error) {
	vendor, err := repo.FindVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found").
				WithDetails(map[string]any{"vendor_id": vendorID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return vendor, nil
}

func requireStatus(batch *models.PayoutBatch, required enums.BatchStatus) error {
	if batch.Status == required {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payout batch is %s, expected %s", batch.Status, required)).
		WithDetails(map[string]any{
			"batch_id": batch.ID,
			"status":   batch.Status,
			"required": required,
		})
}

// aborted reports a lost compare-and-set; the whole transaction rolls back.
func aborted(step string, expected, actual int64) error {
	return pkgerrors.New(pkgerrors.CodeTxAborted, "payout state changed concurrently").
		WithDetails(map[string]any{
			"step":     step,
			"expected": expected,
			"actual":   actual,
		})
}

func (s *service) observe(operation string, err *error) {
	outcome := "ok"
	if err != nil && *err != nil {
		outcome = "error"
		if typed := pkgerrors.As(*err); typed != nil {
			outcome = strings.ToLower(string(typed.Code()))
		}
	}
	s.metrics.ObserveTransition(operation, outcome)
}

func (s *service) logSkipped(ctx context.Context, order models.Order, reason string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"reason":   reason,
	})
	s.logg.Warn(logCtx, "order skipped for payout")
}

func withPayoutStatus(payouts models.VendorPayouts, status enums.VendorPayoutStatus) models.VendorPayouts {
	out := make(models.VendorPayouts, len(payouts))
	for i, entry := range payouts {
		entry.Status = status
		out[i] = entry
	}
	return out
}
