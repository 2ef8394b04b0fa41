package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestVendorPayoutsHelpers(t *testing.T) {
	v1, v2 := uuid.New(), uuid.New()
	o1, o2, o3 := uuid.New(), uuid.New(), uuid.New()
	payouts := VendorPayouts{
		{VendorID: v1, AmountCents: 332500, OrderIDs: []uuid.UUID{o1, o2}},
		{VendorID: v2, AmountCents: 1000, OrderIDs: []uuid.UUID{o3}},
	}

	require.Equal(t, int64(333500), payouts.Total())
	require.Equal(t, []uuid.UUID{o1, o2, o3}, payouts.OrderIDs())

	entry, ok := payouts.Find(v2)
	require.True(t, ok)
	require.Equal(t, int64(1000), entry.AmountCents)

	_, ok = payouts.Find(uuid.New())
	require.False(t, ok)

	batch := PayoutBatch{VendorPayouts: payouts}
	require.True(t, batch.IncludesVendor(v1))
	require.False(t, batch.IncludesVendor(uuid.New()))
}

func TestVendorPayoutsEmpty(t *testing.T) {
	var payouts VendorPayouts
	require.Zero(t, payouts.Total())
	require.Empty(t, payouts.OrderIDs())
}
