package payloads

import (
	"time"

	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	"github.com/google/uuid"
)

// PayoutBatchEvent is the common body of every batch transition.
type PayoutBatchEvent struct {
	BatchID          uuid.UUID         `json:"batch_id"`
	BatchNumber      string            `json:"batch_number"`
	Status           enums.BatchStatus `json:"status"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	VendorIDs        []uuid.UUID       `json:"vendor_ids"`
	OrderCount       int               `json:"order_count"`
}

// VendorSettlement is one vendor's paid share of a completed batch.
type VendorSettlement struct {
	VendorID    uuid.UUID `json:"vendor_id"`
	AmountCents int64     `json:"amount_cents"`
	UTRNumber   *string   `json:"utr_number,omitempty"`
}

// PayoutBatchCompletedEvent is emitted when transfer references are recorded.
type PayoutBatchCompletedEvent struct {
	PayoutBatchEvent
	ProcessedAt time.Time          `json:"processed_at"`
	Settlements []VendorSettlement `json:"settlements"`
}

// PayoutBatchFailedEvent is emitted when a processing batch is abandoned.
type PayoutBatchFailedEvent struct {
	PayoutBatchEvent
	Reason string `json:"reason"`
}

// VendorBalanceDriftEvent reports a corrected balance cache.
type VendorBalanceDriftEvent struct {
	VendorID           uuid.UUID `json:"vendor_id"`
	PendingBeforeCents int64     `json:"pending_before_cents"`
	PendingAfterCents  int64     `json:"pending_after_cents"`
	PayoutsBeforeCents int64     `json:"payouts_before_cents"`
	PayoutsAfterCents  int64     `json:"payouts_after_cents"`
}
