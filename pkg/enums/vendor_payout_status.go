package enums

import "slices"

// VendorPayoutStatus is the state of one vendor's entry inside a batch.
type VendorPayoutStatus string

const (
	VendorPayoutStatusQueued     VendorPayoutStatus = "queued"
	VendorPayoutStatusProcessing VendorPayoutStatus = "processing"
	VendorPayoutStatusPaid       VendorPayoutStatus = "paid"
	VendorPayoutStatusFailed     VendorPayoutStatus = "failed"
)

var vendorPayoutStatuses = []VendorPayoutStatus{
	VendorPayoutStatusQueued,
	VendorPayoutStatusProcessing,
	VendorPayoutStatusPaid,
	VendorPayoutStatusFailed,
}

func (v VendorPayoutStatus) String() string { return string(v) }

func (v VendorPayoutStatus) IsValid() bool { return slices.Contains(vendorPayoutStatuses, v) }

func ParseVendorPayoutStatus(value string) (VendorPayoutStatus, error) {
	return parse("vendor payout status", value, vendorPayoutStatuses)
}
