package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vendor is the registry row holding the denormalized balance cache.
// The ledger stays authoritative; these counters are rebuilt by reconciliation.
type Vendor struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name                  string     `gorm:"column:name;not null"`
	PendingBalanceCents   int64      `gorm:"column:pending_balance_cents;not null;default:0"`
	TotalPayoutsCents     int64      `gorm:"column:total_payouts_cents;not null;default:0"`
	LastPayoutDate        *time.Time `gorm:"column:last_payout_date"`
	LastPayoutAmountCents *int64     `gorm:"column:last_payout_amount_cents"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Vendor) TableName() string { return "vendors" }

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
