package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// VendorPayout is one vendor's share of a batch, embedded in the batch row.
type VendorPayout struct {
	VendorID         uuid.UUID                `json:"vendorId"`
	VendorName       string                   `json:"vendorName"`
	AmountCents      int64                    `json:"amountCents"`
	TransactionCount int                      `json:"transactionCount"`
	OrderIDs         []uuid.UUID              `json:"orderIds"`
	UTRNumber        *string                  `json:"utrNumber,omitempty"`
	Status           enums.VendorPayoutStatus `json:"status"`
}

// VendorPayouts is the ordered manifest persisted as a single JSON document.
type VendorPayouts []VendorPayout

// Total sums every entry's amount.
func (p VendorPayouts) Total() int64 {
	var total int64
	for _, entry := range p {
		total += entry.AmountCents
	}
	return total
}

// OrderIDs flattens the order ids of every entry in manifest order.
func (p VendorPayouts) OrderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, entry := range p {
		ids = append(ids, entry.OrderIDs...)
	}
	return ids
}

// Find returns the entry for vendorID, if present.
func (p VendorPayouts) Find(vendorID uuid.UUID) (VendorPayout, bool) {
	for _, entry := range p {
		if entry.VendorID == vendorID {
			return entry, true
		}
	}
	return VendorPayout{}, false
}

// PayoutBatch groups vendor payouts settled together.
type PayoutBatch struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BatchNumber      string            `gorm:"column:batch_number;not null;uniqueIndex"`
	Status           enums.BatchStatus `gorm:"column:status;type:text;not null;default:'queued'"`
	TotalAmountCents int64             `gorm:"column:total_amount_cents;not null"`
	VendorPayouts    VendorPayouts     `gorm:"column:vendor_payouts;type:jsonb;serializer:json;not null"`
	CreatedBy        string            `gorm:"column:created_by;not null"`
	Notes            *string           `gorm:"column:notes"`
	FailureReason    *string           `gorm:"column:failure_reason"`
	ProcessedAt      *time.Time        `gorm:"column:processed_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PayoutBatch) TableName() string { return "payout_batches" }

func (b *PayoutBatch) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IncludesVendor reports whether the batch carries an entry for vendorID.
func (b PayoutBatch) IncludesVendor(vendorID uuid.UUID) bool {
	_, ok := b.VendorPayouts.Find(vendorID)
	return ok
}
