package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// Order carries the payout-relevant subset of a marketplace order.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorID            *uuid.UUID          `gorm:"column:vendor_id;type:uuid;index"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	FulfillmentStatus   string              `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	TotalAmountCents    int64               `gorm:"column:total_amount_cents;not null;default:0"`
	VendorEarningsCents *int64              `gorm:"column:vendor_earnings_cents"`
	PayoutStatus        enums.PayoutStatus  `gorm:"column:payout_status;type:text;not null;default:'pending';index"`
	PayoutBatchID       *uuid.UUID          `gorm:"column:payout_batch_id;type:uuid;index"`
	PayoutDate          *time.Time          `gorm:"column:payout_date"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
