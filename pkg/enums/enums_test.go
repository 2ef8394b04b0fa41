package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		parse func(string) (string, error)
		ok    string
		bad   string
	}{
		{"payout status", wrap(ParsePayoutStatus), "queued", "settled"},
		{"batch status", wrap(ParseBatchStatus), "processing", "deleted"},
		{"payment status", wrap(ParsePaymentStatus), "refunded", "voided"},
		{"vendor payout status", wrap(ParseVendorPayoutStatus), "failed", "cancelled"},
		{"role", wrap(ParseRole), "finance", "root"},
		{"event type", wrap(ParseOutboxEventType), "payout_batch_completed", "payout_batch_paid"},
		{"aggregate type", wrap(ParseOutboxAggregateType), "vendor", "vendor_order"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.parse(tc.ok)
			require.NoError(t, err)
			assert.Equal(t, tc.ok, got)

			_, err = tc.parse(tc.bad)
			assert.EqualError(t, err, "invalid "+tc.name+` "`+tc.bad+`"`)
		})
	}
}

func wrap[T ~string](fn func(string) (T, error)) func(string) (string, error) {
	return func(s string) (string, error) {
		v, err := fn(s)
		return string(v), err
	}
}

func TestPayoutStatusReferencesBatch(t *testing.T) {
	assert.False(t, PayoutStatusPending.ReferencesBatch())
	for _, status := range []PayoutStatus{PayoutStatusQueued, PayoutStatusProcessing, PayoutStatusPaid} {
		assert.True(t, status.ReferencesBatch(), status)
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	assert.False(t, BatchStatusQueued.IsTerminal())
	assert.False(t, BatchStatusProcessing.IsTerminal())
	assert.True(t, BatchStatusCompleted.IsTerminal())
	assert.True(t, BatchStatusFailed.IsTerminal())
}

func TestIsValid(t *testing.T) {
	assert.True(t, EventVendorBalanceDrift.IsValid())
	assert.False(t, OutboxEventType("").IsValid())
	assert.True(t, RoleAdmin.IsValid())
	assert.False(t, Role("Admin").IsValid())
	assert.False(t, PaymentStatus("COMPLETED").IsValid())
}
