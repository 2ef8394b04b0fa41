package payouts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/angelmondragon/vendor-payouts/pkg/pagination"
)

// Repository persists the order ledger, the vendor registry and payout batches.
// Every mutating method is a conditional write and reports how many rows matched
// so callers can detect a lost race.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Order, error)
	ListEligibleOrders(ctx context.Context, vendorID uuid.UUID, fulfillment []string) ([]models.Order, error)
	ClaimOrder(ctx context.Context, claim OrderClaim) (int64, error)
	TransitionOrders(ctx context.Context, batchID uuid.UUID, orderIDs []uuid.UUID, from, to enums.PayoutStatus, payoutDate *time.Time) (int64, error)
	ReleaseOrders(ctx context.Context, batchID uuid.UUID, orderIDs []uuid.UUID, from enums.PayoutStatus) (int64, error)

	FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	LockVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	ListVendors(ctx context.Context) ([]models.Vendor, error)
	AdjustPendingBalance(ctx context.Context, vendorID uuid.UUID, deltaCents int64) (int64, error)
	RecordVendorPayout(ctx context.Context, vendorID uuid.UUID, amountCents int64, paidAt time.Time) (int64, error)
	OverwriteBalanceCache(ctx context.Context, vendorID uuid.UUID, cache BalanceCache) (int64, error)

	CreateBatch(ctx context.Context, batch *models.PayoutBatch) error
	FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error)
	ListBatches(ctx context.Context) ([]models.PayoutBatch, error)
	ListBatchesByStatus(ctx context.Context, status enums.BatchStatus) ([]models.PayoutBatch, error)
	ListBatchPage(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.PayoutBatch, error)
	TransitionBatch(ctx context.Context, id uuid.UUID, from enums.BatchStatus, update BatchUpdate) (int64, error)
	DeleteBatch(ctx context.Context, id uuid.UUID, from enums.BatchStatus) (int64, error)
}

// OrderClaim is the expected prior state of an order being attached to a batch.
type OrderClaim struct {
	OrderID          uuid.UUID
	VendorID         uuid.UUID
	BatchID          uuid.UUID
	TotalAmountCents int64
	EarningsCents    int64
	Fulfillment      []string
}

// BatchUpdate lists the batch columns a transition rewrites.
type BatchUpdate struct {
	Status        enums.BatchStatus
	VendorPayouts models.VendorPayouts
	ProcessedAt   *time.Time
	FailureReason *string
	UpdatedAt     time.Time
}

// BalanceCache is the rebuildable projection stored on the vendor row.
type BalanceCache struct {
	PendingBalanceCents   int64
	TotalPayoutsCents     int64
	LastPayoutDate        *time.Time
	LastPayoutAmountCents *int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListOrdersByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListEligibleOrders(ctx context.Context, vendorID uuid.UUID, fulfillment []string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Where("payment_status = ?", enums.PaymentStatusCompleted).
		Where("LOWER(TRIM(fulfillment_status)) IN ?", fulfillment).
		Where("payout_status = ?", enums.PayoutStatusPending).
		Where("payout_batch_id IS NULL").
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ClaimOrder(ctx context.Context, claim OrderClaim) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", claim.OrderID).
		Where("vendor_id = ?", claim.VendorID).
		Where("payment_status = ?", enums.PaymentStatusCompleted).
		Where("LOWER(TRIM(fulfillment_status)) IN ?", claim.Fulfillment).
		Where("payout_status = ?", enums.PayoutStatusPending).
		Where("payout_batch_id IS NULL").
		Where("total_amount_cents = ?", claim.TotalAmountCents).
		Updates(map[string]any{
			"payout_status":         enums.PayoutStatusQueued,
			"payout_batch_id":       claim.BatchID,
			"vendor_earnings_cents": claim.EarningsCents,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) TransitionOrders(ctx context.Context, batchID uuid.UUID, orderIDs []uuid.UUID, from, to enums.PayoutStatus, payoutDate *time.Time) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	updates := map[string]any{"payout_status": to}
	if payoutDate != nil {
		updates["payout_date"] = *payoutDate
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Where("payout_batch_id = ?", batchID).
		Where("payout_status = ?", from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseOrders(ctx context.Context, batchID uuid.UUID, orderIDs []uuid.UUID, from enums.PayoutStatus) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Where("payout_batch_id = ?", batchID).
		Where("payout_status = ?", from).
		Updates(map[string]any{
			"payout_status":         enums.PayoutStatusPending,
			"payout_batch_id":       nil,
			"vendor_earnings_cents": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// LockVendor reads the vendor row FOR UPDATE so cache writers queue behind the
// caller's transaction. sqlite serializes writers and has no row locks.
func (r *repository) LockVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var vendor models.Vendor
	if err := query.Where("id = ?", id).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *repository) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	var vendors []models.Vendor
	if err := r.db.WithContext(ctx).
		Order("name ASC").
		Order("id ASC").
		Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

func (r *repository) AdjustPendingBalance(ctx context.Context, vendorID uuid.UUID, deltaCents int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("id = ?", vendorID).
		Update("pending_balance_cents", gorm.Expr("pending_balance_cents + ?", deltaCents))
	return res.RowsAffected, res.Error
}

func (r *repository) RecordVendorPayout(ctx context.Context, vendorID uuid.UUID, amountCents int64, paidAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("id = ?", vendorID).
		Updates(map[string]any{
			"total_payouts_cents":      gorm.Expr("total_payouts_cents + ?", amountCents),
			"last_payout_date":         paidAt,
			"last_payout_amount_cents": amountCents,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) OverwriteBalanceCache(ctx context.Context, vendorID uuid.UUID, cache BalanceCache) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("id = ?", vendorID).
		Updates(map[string]any{
			"pending_balance_cents":    cache.PendingBalanceCents,
			"total_payouts_cents":      cache.TotalPayoutsCents,
			"last_payout_date":         cache.LastPayoutDate,
			"last_payout_amount_cents": cache.LastPayoutAmountCents,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.PayoutBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) FindBatch(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListBatches(ctx context.Context) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) ListBatchesByStatus(ctx context.Context, status enums.BatchStatus) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("processed_at DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) ListBatchPage(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.PayoutBatch, error) {
	query := r.db.WithContext(ctx).Model(&models.PayoutBatch{})
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var batches []models.PayoutBatch
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) TransitionBatch(ctx context.Context, id uuid.UUID, from enums.BatchStatus, update BatchUpdate) (int64, error) {
	updates := map[string]any{
		"status":     update.Status,
		"updated_at": update.UpdatedAt,
	}
	if update.VendorPayouts != nil {
		// map updates bypass the field serializer
		payload, err := json.Marshal(update.VendorPayouts)
		if err != nil {
			return 0, err
		}
		updates["vendor_payouts"] = string(payload)
	}
	if update.ProcessedAt != nil {
		updates["processed_at"] = *update.ProcessedAt
	}
	if update.FailureReason != nil {
		updates["failure_reason"] = *update.FailureReason
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutBatch{}).
		Where("id = ?", id).
		Where("status = ?", from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteBatch(ctx context.Context, id uuid.UUID, from enums.BatchStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Where("status = ?", from).
		Delete(&models.PayoutBatch{})
	return res.RowsAffected, res.Error
}
