package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// VendorBalance is the per-vendor projection derived from the order ledger.
type VendorBalance struct {
	VendorID              uuid.UUID  `json:"vendor_id"`
	VendorName            string     `json:"vendor_name"`
	PendingBalanceCents   int64      `json:"pending_balance_cents"`
	TotalEarningsCents    int64      `json:"total_earnings_cents"`
	TotalPayoutsCents     int64      `json:"total_payouts_cents"`
	OrderCount            int        `json:"order_count"`
	LastPayoutDate        *time.Time `json:"last_payout_date,omitempty"`
	LastPayoutAmountCents *int64     `json:"last_payout_amount_cents,omitempty"`
}

// CreateBatchInput selects the vendors to settle.
type CreateBatchInput struct {
	VendorIDs []uuid.UUID
	CreatedBy string
	Notes     *string
}

// VendorPayoutView is the API shape of one batch entry.
type VendorPayoutView struct {
	VendorID         uuid.UUID                `json:"vendor_id"`
	VendorName       string                   `json:"vendor_name"`
	AmountCents      int64                    `json:"amount_cents"`
	TransactionCount int                      `json:"transaction_count"`
	OrderIDs         []uuid.UUID              `json:"order_ids"`
	UTRNumber        *string                  `json:"utr_number,omitempty"`
	Status           enums.VendorPayoutStatus `json:"status"`
}

// BatchView is the API shape of a payout batch.
type BatchView struct {
	ID               uuid.UUID          `json:"id"`
	BatchNumber      string             `json:"batch_number"`
	Status           enums.BatchStatus  `json:"status"`
	TotalAmountCents int64              `json:"total_amount_cents"`
	VendorPayouts    []VendorPayoutView `json:"vendor_payouts"`
	CreatedBy        string             `json:"created_by"`
	Notes            *string            `json:"notes,omitempty"`
	FailureReason    *string            `json:"failure_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	ProcessedAt      *time.Time         `json:"processed_at,omitempty"`
}

// BatchPage wraps one page of batches plus the next page cursor.
type BatchPage struct {
	Batches    []BatchView `json:"batches"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// ReconcileReport summarizes one pass over the vendor balance cache.
type ReconcileReport struct {
	VendorsScanned   int               `json:"vendors_scanned"`
	VendorsCorrected int               `json:"vendors_corrected"`
	Corrections      []CacheCorrection `json:"corrections,omitempty"`
}

// CacheCorrection records the drift found on one vendor.
type CacheCorrection struct {
	VendorID           uuid.UUID `json:"vendor_id"`
	PendingBeforeCents int64     `json:"pending_before_cents"`
	PendingAfterCents  int64     `json:"pending_after_cents"`
	PayoutsBeforeCents int64     `json:"payouts_before_cents"`
	PayoutsAfterCents  int64     `json:"payouts_after_cents"`
}

// NewBatchView maps a persisted batch onto its API shape.
func NewBatchView(batch models.PayoutBatch) BatchView {
	view := BatchView{
		ID:               batch.ID,
		BatchNumber:      batch.BatchNumber,
		Status:           batch.Status,
		TotalAmountCents: batch.TotalAmountCents,
		VendorPayouts:    make([]VendorPayoutView, 0, len(batch.VendorPayouts)),
		CreatedBy:        batch.CreatedBy,
		Notes:            batch.Notes,
		FailureReason:    batch.FailureReason,
		CreatedAt:        batch.CreatedAt,
		ProcessedAt:      batch.ProcessedAt,
	}
	for _, entry := range batch.VendorPayouts {
		orderIDs := entry.OrderIDs
		if orderIDs == nil {
			orderIDs = []uuid.UUID{}
		}
		view.VendorPayouts = append(view.VendorPayouts, VendorPayoutView{
			VendorID:         entry.VendorID,
			VendorName:       entry.VendorName,
			AmountCents:      entry.AmountCents,
			TransactionCount: entry.TransactionCount,
			OrderIDs:         orderIDs,
			UTRNumber:        entry.UTRNumber,
			Status:           entry.Status,
		})
	}
	return view
}

// NewBatchViews maps a slice of batches preserving order.
func NewBatchViews(batches []models.PayoutBatch) []BatchView {
	views := make([]BatchView, 0, len(batches))
	for _, batch := range batches {
		views = append(views, NewBatchView(batch))
	}
	return views
}
