package enums

import "slices"

// PayoutStatus tracks an order's progress through settlement:
// pending -> queued -> processing -> paid.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusQueued     PayoutStatus = "queued"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
)

var payoutStatuses = []PayoutStatus{PayoutStatusPending, PayoutStatusQueued, PayoutStatusProcessing, PayoutStatusPaid}

func (p PayoutStatus) String() string { return string(p) }

func (p PayoutStatus) IsValid() bool { return slices.Contains(payoutStatuses, p) }

// ReferencesBatch reports whether an order in this status must carry a batch id.
func (p PayoutStatus) ReferencesBatch() bool {
	return p != PayoutStatusPending
}

func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return parse("payout status", value, payoutStatuses)
}
