package payouts

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox/payloads"
)

type lastPayout struct {
	date   time.Time
	amount int64
}

// ListVendorBalances scans the whole ledger. It is not transactional: a batch
// created concurrently may or may not be reflected.
func (s *service) ListVendorBalances(ctx context.Context) ([]VendorBalance, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan order ledger")
	}
	vendors, err := s.repo.ListVendors(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors")
	}
	last, err := s.lastPayouts(ctx, s.repo, nil)
	if err != nil {
		return nil, err
	}

	names := make(map[uuid.UUID]string, len(vendors))
	for _, vendor := range vendors {
		names[vendor.ID] = vendor.Name
	}

	projected := s.project(ctx, orders)
	out := make([]VendorBalance, 0, len(projected))
	for vendorID, balance := range projected {
		if balance.PendingBalanceCents <= 0 {
			continue
		}
		name, ok := names[vendorID]
		if !ok {
			s.logg.Warn(s.logg.WithVendorID(ctx, vendorID.String()), "ledger references vendor missing from registry")
		}
		balance.VendorName = name
		if entry, ok := last[vendorID]; ok {
			date, amount := entry.date, entry.amount
			balance.LastPayoutDate = &date
			balance.LastPayoutAmountCents = &amount
		}
		out = append(out, *balance)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PendingBalanceCents != out[j].PendingBalanceCents {
			return out[i].PendingBalanceCents > out[j].PendingBalanceCents
		}
		return out[i].VendorID.String() < out[j].VendorID.String()
	})
	return out, nil
}

// project groups earned orders by vendor. Rows that break ledger invariants are
// logged and skipped so one bad record never fails the scan.
func (s *service) project(ctx context.Context, orders []models.Order) map[uuid.UUID]*VendorBalance {
	balances := make(map[uuid.UUID]*VendorBalance)
	for _, order := range orders {
		if !s.policy.Earned(order) {
			continue
		}
		if order.VendorID == nil {
			s.logSkipped(ctx, order, skipMissingVendor)
			continue
		}
		if order.TotalAmountCents <= 0 {
			s.logSkipped(ctx, order, skipNonPositive)
			continue
		}
		if order.PayoutStatus.ReferencesBatch() != (order.PayoutBatchID != nil) {
			s.logSkipped(ctx, order, skipInconsistentRef)
			continue
		}

		vendorID := *order.VendorID
		balance, ok := balances[vendorID]
		if !ok {
			balance = &VendorBalance{VendorID: vendorID}
			balances[vendorID] = balance
		}

		earnings := s.policy.earningsFor(order)
		balance.TotalEarningsCents += earnings
		switch order.PayoutStatus {
		case enums.PayoutStatusPending:
			balance.PendingBalanceCents += earnings
			balance.OrderCount++
		case enums.PayoutStatusPaid:
			balance.TotalPayoutsCents += earnings
		}
	}
	return balances
}

// lastPayouts finds, per vendor, the most recent completed batch that paid them.
// A non-nil only restricts the result to that vendor.
func (s *service) lastPayouts(ctx context.Context, repo Repository, only *uuid.UUID) (map[uuid.UUID]lastPayout, error) {
	completed, err := repo.ListBatchesByStatus(ctx, enums.BatchStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list completed batches")
	}
	settledAt := func(batch models.PayoutBatch) time.Time {
		if batch.ProcessedAt != nil {
			return *batch.ProcessedAt
		}
		return batch.CreatedAt
	}
	sort.SliceStable(completed, func(i, j int) bool {
		return settledAt(completed[i]).After(settledAt(completed[j]))
	})

	last := make(map[uuid.UUID]lastPayout)
	for _, batch := range completed {
		for _, entry := range batch.VendorPayouts {
			if only != nil && entry.VendorID != *only {
				continue
			}
			if _, seen := last[entry.VendorID]; seen {
				continue
			}
			last[entry.VendorID] = lastPayout{date: settledAt(batch), amount: entry.AmountCents}
		}
	}
	return last, nil
}

// ReconcileBalances rebuilds every vendor's cached counters from the ledger and
// rewrites the ones that drifted. Each vendor is corrected in its own transaction
// that locks the vendor row before reading the ledger, so a batch transition
// either commits before the scan or applies its delta after the rewrite.
func (s *service) ReconcileBalances(ctx context.Context) (report *ReconcileReport, err error) {
	defer s.observe("reconcile", &err)

	vendors, err := s.repo.ListVendors(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors")
	}
	report = &ReconcileReport{}
	for _, vendor := range vendors {
		report.VendorsScanned++
		vendorCtx := s.logg.WithVendorID(ctx, vendor.ID.String())

		var correction *CacheCorrection
		err := s.tx.WithTx(vendorCtx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.LockVendor(vendorCtx, vendor.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock vendor")
			}
			orders, err := repo.ListOrdersByVendor(vendorCtx, vendor.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan vendor orders")
			}
			last, err := s.lastPayouts(vendorCtx, repo, &vendor.ID)
			if err != nil {
				return err
			}

			want := BalanceCache{}
			if projected, ok := s.project(vendorCtx, orders)[vendor.ID]; ok {
				want.PendingBalanceCents = projected.PendingBalanceCents
				want.TotalPayoutsCents = projected.TotalPayoutsCents
			}
			if entry, ok := last[vendor.ID]; ok {
				date, amount := entry.date, entry.amount
				want.LastPayoutDate = &date
				want.LastPayoutAmountCents = &amount
			}
			if cacheMatches(*current, want) {
				return nil
			}

			if _, err := repo.OverwriteBalanceCache(vendorCtx, vendor.ID, want); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rewrite vendor balance cache")
			}
			correction = &CacheCorrection{
				VendorID:           vendor.ID,
				PendingBeforeCents: current.PendingBalanceCents,
				PendingAfterCents:  want.PendingBalanceCents,
				PayoutsBeforeCents: current.TotalPayoutsCents,
				PayoutsAfterCents:  want.TotalPayoutsCents,
			}
			return s.outbox.Emit(vendorCtx, tx, outbox.DomainEvent{
				EventType:     enums.EventVendorBalanceDrift,
				AggregateType: enums.AggregateVendor,
				AggregateID:   vendor.ID,
				Data: payloads.VendorBalanceDriftEvent{
					VendorID:           vendor.ID,
					PendingBeforeCents: correction.PendingBeforeCents,
					PendingAfterCents:  correction.PendingAfterCents,
					PayoutsBeforeCents: correction.PayoutsBeforeCents,
					PayoutsAfterCents:  correction.PayoutsAfterCents,
				},
				Version:    1,
				OccurredAt: s.now(),
			})
		})
		if err != nil {
			return report, err
		}
		if correction == nil {
			continue
		}

		report.VendorsCorrected++
		report.Corrections = append(report.Corrections, *correction)
		s.logg.Warn(s.logg.WithFields(vendorCtx, map[string]any{
			"pending_before_cents": correction.PendingBeforeCents,
			"pending_after_cents":  correction.PendingAfterCents,
			"payouts_before_cents": correction.PayoutsBeforeCents,
			"payouts_after_cents":  correction.PayoutsAfterCents,
		}), "vendor balance cache drift corrected")
	}

	s.metrics.AddCorrections(report.VendorsCorrected)
	return report, nil
}

func cacheMatches(vendor models.Vendor, want BalanceCache) bool {
	if vendor.PendingBalanceCents != want.PendingBalanceCents || vendor.TotalPayoutsCents != want.TotalPayoutsCents {
		return false
	}
	if (vendor.LastPayoutDate == nil) != (want.LastPayoutDate == nil) {
		return false
	}
	if vendor.LastPayoutDate != nil && !vendor.LastPayoutDate.Equal(*want.LastPayoutDate) {
		return false
	}
	if (vendor.LastPayoutAmountCents == nil) != (want.LastPayoutAmountCents == nil) {
		return false
	}
	return vendor.LastPayoutAmountCents == nil || *vendor.LastPayoutAmountCents == *want.LastPayoutAmountCents
}
