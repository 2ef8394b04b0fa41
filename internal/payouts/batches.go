package payouts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendor-payouts/pkg/db"
	"github.com/angelmondragon/vendor-payouts/pkg/db/models"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox"
	"github.com/angelmondragon/vendor-payouts/pkg/outbox/payloads"
)

// CreateBatch claims every eligible order of the selected vendors into a new
// queued batch. The claim, the balance moves and the batch row commit together.
func (s *service) CreateBatch(ctx context.Context, input CreateBatchInput) (batchID uuid.UUID, err error) {
	defer s.observe("create", &err)

	vendorIDs, err := normalizeVendorIDs(input.VendorIDs)
	if err != nil {
		return uuid.Nil, err
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "created_by is required")
	}
	var notes *string
	if input.Notes != nil {
		if trimmed := strings.TrimSpace(*input.Notes); trimmed != "" {
			notes = &trimmed
		}
	}

	now := s.now()
	batchNumber := s.nextBatchNumber(ctx, now)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"batch_number": batchNumber,
		"vendor_count": len(vendorIDs),
	})

	var batch models.PayoutBatch
	err = s.tx.WithTx(logCtx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payouts := make(models.VendorPayouts, 0, len(vendorIDs))
		claims := make([]OrderClaim, 0)
		for _, vendorID := range vendorIDs {
			vendor, err := s.loadVendor(logCtx, repo, vendorID)
			if err != nil {
				return err
			}
			orders, err := repo.ListEligibleOrders(logCtx, vendorID, s.policy.FulfillmentStatuses())
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible orders")
			}

			entry := models.VendorPayout{
				VendorID:   vendor.ID,
				VendorName: vendor.Name,
				OrderIDs:   []uuid.UUID{},
				Status:     enums.VendorPayoutStatusQueued,
			}
			for _, order := range orders {
				if ok, reason := s.policy.Eligible(order); !ok {
					s.logSkipped(logCtx, order, reason)
					continue
				}
				earnings := s.policy.Earnings(order.TotalAmountCents)
				entry.AmountCents += earnings
				entry.TransactionCount++
				entry.OrderIDs = append(entry.OrderIDs, order.ID)
				claims = append(claims, OrderClaim{
					OrderID:          order.ID,
					VendorID:         vendor.ID,
					TotalAmountCents: order.TotalAmountCents,
					EarningsCents:    earnings,
					Fulfillment:      s.policy.FulfillmentStatuses(),
				})
			}
			if entry.AmountCents <= 0 {
				s.logg.Info(s.logg.WithVendorID(logCtx, vendorID.String()), "vendor has nothing to settle")
				continue
			}
			payouts = append(payouts, entry)
		}
		if len(payouts) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "no eligible orders for the selected vendors").
				WithDetails(map[string]any{"vendor_ids": vendorIDs})
		}

		batch = models.PayoutBatch{
			ID:               uuid.New(),
			BatchNumber:      batchNumber,
			Status:           enums.BatchStatusQueued,
			TotalAmountCents: payouts.Total(),
			VendorPayouts:    payouts,
			CreatedBy:        createdBy,
			Notes:            notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.CreateBatch(logCtx, &batch); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeTxAborted, err, "batch number already taken").
					WithDetails(map[string]any{"step": "batch_number", "batch_number": batchNumber})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payout batch")
		}

		for _, claim := range claims {
			claim.BatchID = batch.ID
			affected, err := repo.ClaimOrder(logCtx, claim)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order")
			}
			if affected != 1 {
				return aborted("claim_order", 1, affected)
			}
		}
		for _, entry := range payouts {
			affected, err := repo.AdjustPendingBalance(logCtx, entry.VendorID, -entry.AmountCents)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit vendor pending balance")
			}
			if affected != 1 {
				return aborted("debit_pending_balance", 1, affected)
			}
		}

		return s.emitBatchEvent(logCtx, tx, enums.EventPayoutBatchCreated, batch, batchEvent(batch))
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithBatchID(logCtx, batch.ID.String()), map[string]any{
		"total_amount_cents": batch.TotalAmountCents,
		"order_count":        len(batch.VendorPayouts.OrderIDs()),
	}), "payout batch created")
	return batch.ID, nil
}

// nextBatchNumber prefers the shared counter and degrades to a timestamp suffix
// when the counter store is missing or unreachable.
func (s *service) nextBatchNumber(ctx context.Context, now time.Time) string {
	year := now.Year()
	if s.sequence != nil {
		seq, err := s.sequence.NextSequence(ctx, fmt.Sprintf("payout_batch:%d", year))
		if err == nil {
			return fmt.Sprintf("%s-%d-%06d", s.prefix, year, seq)
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "batch sequence unavailable, using timestamp")
	}
	return fmt.Sprintf("%s-%d-T%d", s.prefix, year, now.UnixMilli())
}

func normalizeVendorIDs(ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one vendor id is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id must not be empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func batchEvent(batch models.PayoutBatch) payloads.PayoutBatchEvent {
	vendorIDs := make([]uuid.UUID, 0, len(batch.VendorPayouts))
	for _, entry := range batch.VendorPayouts {
		vendorIDs = append(vendorIDs, entry.VendorID)
	}
	return payloads.PayoutBatchEvent{
		BatchID:          batch.ID,
		BatchNumber:      batch.BatchNumber,
		Status:           batch.Status,
		TotalAmountCents: batch.TotalAmountCents,
		VendorIDs:        vendorIDs,
		OrderCount:       len(batch.VendorPayouts.OrderIDs()),
	}
}

func (s *service) emitBatchEvent(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, batch models.PayoutBatch, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayoutBatch,
		AggregateID:   batch.ID,
		Data:          data,
		Version:       1,
		OccurredAt:    s.now(),
	}
	if actor := actorFromContext(ctx); actor != nil {
		event.Actor = actor
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue outbox event")
	}
	return nil
}
