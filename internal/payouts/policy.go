package payouts

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

// Policy holds the commission rate and eligibility rules every payout component shares.
type Policy struct {
	rate        decimal.Decimal
	fulfillment []string
	eligible    map[string]struct{}
}

// NewPolicy builds a policy from the configured rate and fulfillment statuses.
func NewPolicy(cfg config.PayoutsConfig) (Policy, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.CommissionRate))
	if err != nil {
		return Policy{}, fmt.Errorf("parse commission rate %q: %w", cfg.CommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Policy{}, fmt.Errorf("commission rate %s must be between 0 and 1", rate)
	}

	policy := Policy{rate: rate, eligible: map[string]struct{}{}}
	for _, status := range cfg.EligibleFulfillmentStatuses {
		status = strings.ToLower(strings.TrimSpace(status))
		if status == "" {
			continue
		}
		if _, dup := policy.eligible[status]; dup {
			continue
		}
		policy.eligible[status] = struct{}{}
		policy.fulfillment = append(policy.fulfillment, status)
	}
	if len(policy.fulfillment) == 0 {
		return Policy{}, fmt.Errorf("at least one eligible fulfillment status is required")
	}
	return policy, nil
}

// DefaultPolicy is the 5% commission with completed/delivered/ready fulfillment.
func DefaultPolicy() Policy {
	policy, err := NewPolicy(config.PayoutsConfig{
		CommissionRate:              "0.05",
		EligibleFulfillmentStatuses: []string{"completed", "delivered", "ready"},
	})
	if err != nil {
		panic(err)
	}
	return policy
}

// Rate returns the commission rate.
func (p Policy) Rate() decimal.Decimal { return p.rate }

// FulfillmentStatuses returns the eligible fulfillment statuses in configured order.
func (p Policy) FulfillmentStatuses() []string {
	out := make([]string, len(p.fulfillment))
	copy(out, p.fulfillment)
	return out
}

// Commission is the platform share of totalCents, rounded half-up to the cent.
func (p Policy) Commission(totalCents int64) int64 {
	return decimal.NewFromInt(totalCents).Mul(p.rate).Round(0).IntPart()
}

// Earnings is what the vendor is owed for an order of totalCents.
func (p Policy) Earnings(totalCents int64) int64 {
	return totalCents - p.Commission(totalCents)
}

// SettlesFulfillment reports whether the fulfillment status counts as delivered.
// It normalizes exactly like the LOWER(TRIM(...)) filter the repository applies,
// so only spaces are stripped.
func (p Policy) SettlesFulfillment(status string) bool {
	_, ok := p.eligible[strings.ToLower(strings.Trim(status, " "))]
	return ok
}

// Earned reports whether the order counts toward lifetime earnings, ignoring payout status.
func (p Policy) Earned(order models.Order) bool {
	return order.PaymentStatus == enums.PaymentStatusCompleted && p.SettlesFulfillment(order.FulfillmentStatus)
}

// Skip reasons reported when an order cannot be settled.
const (
	skipMissingVendor   = "missing vendor id"
	skipNonPositive     = "non-positive total amount"
	skipPaymentPending  = "payment not completed"
	skipFulfillment     = "fulfillment not settled"
	skipAlreadyInBatch  = "payout already in progress"
	skipInconsistentRef = "payout batch reference inconsistent with status"
)

// Eligible reports whether order may join a new batch, with the reason when it may not.
func (p Policy) Eligible(order models.Order) (bool, string) {
	if order.VendorID == nil {
		return false, skipMissingVendor
	}
	if order.TotalAmountCents <= 0 {
		return false, skipNonPositive
	}
	if order.PaymentStatus != enums.PaymentStatusCompleted {
		return false, skipPaymentPending
	}
	if !p.SettlesFulfillment(order.FulfillmentStatus) {
		return false, skipFulfillment
	}
	if order.PayoutStatus != enums.PayoutStatusPending {
		return false, skipAlreadyInBatch
	}
	if order.PayoutBatchID != nil {
		return false, skipInconsistentRef
	}
	return true, ""
}

// earningsFor prefers the amount fixed when the order was claimed so later rate
// changes do not rewrite settled history.
func (p Policy) earningsFor(order models.Order) int64 {
	if order.PayoutStatus != enums.PayoutStatusPending && order.VendorEarningsCents != nil {
		return *order.VendorEarningsCents
	}
	return p.Earnings(order.TotalAmountCents)
}
