package payouts

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox/payloads"
)

// AdvanceBatch hands a queued batch to processing along with every order it references.
func (s *service) AdvanceBatch(ctx context.Context, batchID uuid.UUID) (err error) {
	defer s.observe("advance", &err)
	if batchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	ctx = s.logg.WithBatchID(ctx, batchID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := s.loadBatch(ctx, repo, batchID)
		if err != nil {
			return err
		}
		if err := requireStatus(batch, enums.BatchStatusQueued); err != nil {
			return err
		}

		batch.Status = enums.BatchStatusProcessing
		batch.VendorPayouts = withPayoutStatus(batch.VendorPayouts, enums.VendorPayoutStatusProcessing)
		affected, err := repo.TransitionBatch(ctx, batchID, enums.BatchStatusQueued, BatchUpdate{
			Status:        batch.Status,
			VendorPayouts: batch.VendorPayouts,
			UpdatedAt:     s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance payout batch")
		}
		if affected != 1 {
			return aborted("advance_batch", 1, affected)
		}

		orderIDs := batch.VendorPayouts.OrderIDs()
		affected, err = repo.TransitionOrders(ctx, batchID, orderIDs, enums.PayoutStatusQueued, enums.PayoutStatusProcessing, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance batch orders")
		}
		if affected != int64(len(orderIDs)) {
			return aborted("advance_orders", int64(len(orderIDs)), affected)
		}

		return s.emitBatchEvent(ctx, tx, enums.EventPayoutBatchAdvanced, *batch, batchEvent(*batch))
	})
	if err != nil {
		return err
	}
	s.logg.Info(ctx, "payout batch processing")
	return nil
}

// FinalizeBatch records transfer references and marks a processing batch paid.
// Vendors missing from utrByVendor are paid without a reference.
func (s *service) FinalizeBatch(ctx context.Context, batchID uuid.UUID, utrByVendor map[uuid.UUID]string) (err error) {
	defer s.observe("finalize", &err)
	if batchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	ctx = s.logg.WithBatchID(ctx, batchID.String())

	var settled int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := s.loadBatch(ctx, repo, batchID)
		if err != nil {
			return err
		}
		if err := requireStatus(batch, enums.BatchStatusProcessing); err != nil {
			return err
		}
		if err := validateUTRKeys(batch.VendorPayouts, utrByVendor); err != nil {
			return err
		}

		now := s.now()
		payouts := make(models.VendorPayouts, len(batch.VendorPayouts))
		settlements := make([]payloads.VendorSettlement, 0, len(batch.VendorPayouts))
		for i, entry := range batch.VendorPayouts {
			entry.Status = enums.VendorPayoutStatusPaid
			entry.UTRNumber = nil
			if utr := strings.TrimSpace(utrByVendor[entry.VendorID]); utr != "" {
				entry.UTRNumber = &utr
			}
			payouts[i] = entry
			settlements = append(settlements, payloads.VendorSettlement{
				VendorID:    entry.VendorID,
				AmountCents: entry.AmountCents,
				UTRNumber:   entry.UTRNumber,
			})
		}

		batch.Status = enums.BatchStatusCompleted
		batch.VendorPayouts = payouts
		batch.ProcessedAt = &now
		affected, err := repo.TransitionBatch(ctx, batchID, enums.BatchStatusProcessing, BatchUpdate{
			Status:        batch.Status,
			VendorPayouts: payouts,
			ProcessedAt:   &now,
			UpdatedAt:     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payout batch")
		}
		if affected != 1 {
			return aborted("complete_batch", 1, affected)
		}

		orderIDs := payouts.OrderIDs()
		affected, err = repo.TransitionOrders(ctx, batchID, orderIDs, enums.PayoutStatusProcessing, enums.PayoutStatusPaid, &now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark batch orders paid")
		}
		if affected != int64(len(orderIDs)) {
			return aborted("pay_orders", int64(len(orderIDs)), affected)
		}

		for _, entry := range payouts {
			affected, err := repo.RecordVendorPayout(ctx, entry.VendorID, entry.AmountCents, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record vendor payout")
			}
			if affected != 1 {
				return aborted("record_vendor_payout", 1, affected)
			}
		}

		settled = batch.TotalAmountCents
		return s.emitBatchEvent(ctx, tx, enums.EventPayoutBatchCompleted, *batch, payloads.PayoutBatchCompletedEvent{
			PayoutBatchEvent: batchEvent(*batch),
			ProcessedAt:      now,
			Settlements:      settlements,
		})
	})
	if err != nil {
		return err
	}

	s.metrics.AddSettled(settled)
	s.logg.Info(s.logg.WithField(ctx, "settled_cents", settled), "payout batch completed")
	return nil
}

// FailBatch abandons a processing batch and releases its orders for a future batch.
func (s *service) FailBatch(ctx context.Context, batchID uuid.UUID, reason string) (err error) {
	defer s.observe("fail", &err)
	if batchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	ctx = s.logg.WithBatchID(ctx, batchID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := s.loadBatch(ctx, repo, batchID)
		if err != nil {
			return err
		}
		if err := requireStatus(batch, enums.BatchStatusProcessing); err != nil {
			return err
		}

		batch.Status = enums.BatchStatusFailed
		batch.VendorPayouts = withPayoutStatus(batch.VendorPayouts, enums.VendorPayoutStatusFailed)
		batch.FailureReason = &reason
		affected, err := repo.TransitionBatch(ctx, batchID, enums.BatchStatusProcessing, BatchUpdate{
			Status:        batch.Status,
			VendorPayouts: batch.VendorPayouts,
			FailureReason: &reason,
			UpdatedAt:     s.now(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payout batch")
		}
		if affected != 1 {
			return aborted("fail_batch", 1, affected)
		}

		if err := s.release(ctx, repo, *batch, enums.PayoutStatusProcessing); err != nil {
			return err
		}

		return s.emitBatchEvent(ctx, tx, enums.EventPayoutBatchFailed, *batch, payloads.PayoutBatchFailedEvent{
			PayoutBatchEvent: batchEvent(*batch),
			Reason:           reason,
		})
	})
	if err != nil {
		return err
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payout batch failed")
	return nil
}

// DeleteBatch reverses CreateBatch for a batch that has not started processing.
func (s *service) DeleteBatch(ctx context.Context, batchID uuid.UUID) (err error) {
	defer s.observe("delete", &err)
	if batchID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "batch id required")
	}
	ctx = s.logg.WithBatchID(ctx, batchID.String())

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := s.loadBatch(ctx, repo, batchID)
		if err != nil {
			return err
		}
		if err := requireStatus(batch, enums.BatchStatusQueued); err != nil {
			return err
		}

		if err := s.release(ctx, repo, *batch, enums.PayoutStatusQueued); err != nil {
			return err
		}

		affected, err := repo.DeleteBatch(ctx, batchID, enums.BatchStatusQueued)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payout batch")
		}
		if affected != 1 {
			return aborted("delete_batch", 1, affected)
		}

		return s.emitBatchEvent(ctx, tx, enums.EventPayoutBatchDeleted, *batch, batchEvent(*batch))
	})
	if err != nil {
		return err
	}
	s.logg.Info(ctx, "payout batch deleted")
	return nil
}

// release returns the batch's orders to pending and credits each vendor's
// pending balance with its share.
func (s *service) release(ctx context.Context, repo Repository, batch models.PayoutBatch, from enums.PayoutStatus) error {
	orderIDs := batch.VendorPayouts.OrderIDs()
	affected, err := repo.ReleaseOrders(ctx, batch.ID, orderIDs, from)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release batch orders")
	}
	if affected != int64(len(orderIDs)) {
		return aborted("release_orders", int64(len(orderIDs)), affected)
	}

	for _, entry := range batch.VendorPayouts {
		affected, err := repo.AdjustPendingBalance(ctx, entry.VendorID, entry.AmountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit vendor pending balance")
		}
		if affected != 1 {
			return aborted("credit_pending_balance", 1, affected)
		}
	}
	return nil
}

func validateUTRKeys(payouts models.VendorPayouts, utrByVendor map[uuid.UUID]string) error {
	unknown := make([]string, 0)
	for vendorID := range utrByVendor {
		if _, ok := payouts.Find(vendorID); !ok {
			unknown = append(unknown, vendorID.String())
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return pkgerrors.New(pkgerrors.CodeValidation, "utr numbers supplied for vendors outside the batch").
		WithDetails(map[string]any{"vendor_ids": unknown})
}
