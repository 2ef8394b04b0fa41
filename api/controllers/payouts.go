package controllers

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/pagination"

	"github.com/angelmondragon/vendor-payouts/api/middleware"
	"github.com/angelmondragon/vendor-payouts/api/responses"
	"github.com/angelmondragon/vendor-payouts/api/validators"
)

type createBatchRequest struct {
	VendorIDs []string `json:"vendor_ids" validate:"required,min=1,dive,uuid"`
	Notes     *string  `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// maxUTRLength bounds a bank transfer reference. Longer values are rejected,
// never cut, since a shortened reference no longer identifies the transfer.
const maxUTRLength = 64

type finalizeBatchRequest struct {
	UTRByVendor map[string]string `json:"utr_by_vendor"`
}

type failBatchRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type createBatchResponse struct {
	BatchID uuid.UUID `json:"batch_id"`
}

// AdminVendorBalances lists vendors with a pending balance, largest first.
func AdminVendorBalances(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		balances, err := svc.ListVendorBalances(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if balances == nil {
			balances = []payouts.VendorBalance{}
		}
		responses.WriteSuccess(w, balances)
	}
}

// AdminListPayoutBatches returns batches newest first, one cursor page at a time.
func AdminListPayoutBatches(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListBatchPage(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminCreatePayoutBatch claims the eligible orders of the selected vendors.
func AdminCreatePayoutBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var req createBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorIDs := make([]uuid.UUID, 0, len(req.VendorIDs))
		for _, raw := range req.VendorIDs {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id").WithDetails(map[string]any{"vendor_id": raw}))
				return
			}
			vendorIDs = append(vendorIDs, id)
		}

		batchID, err := svc.CreateBatch(actorContext(r), payouts.CreateBatchInput{
			VendorIDs: vendorIDs,
			CreatedBy: userID,
			Notes:     req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createBatchResponse{BatchID: batchID})
	}
}

// AdminGetPayoutBatch returns a single batch with its vendor entries.
func AdminGetPayoutBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, r, svc, logg, batchID, http.StatusOK)
	}
}

// AdminAdvancePayoutBatch moves a queued batch into processing.
func AdminAdvancePayoutBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.AdvanceBatch(actorContext(r), batchID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, r, svc, logg, batchID, http.StatusOK)
	}
}

// AdminFinalizePayoutBatch completes a processing batch, recording bank references.
func AdminFinalizePayoutBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req finalizeBatchRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		utr := make(map[uuid.UUID]string, len(req.UTRByVendor))
		for rawVendor, reference := range req.UTRByVendor {
			vendorID, err := uuid.Parse(strings.TrimSpace(rawVendor))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id").WithDetails(map[string]any{"vendor_id": rawVendor}))
				return
			}
			reference = strings.TrimSpace(reference)
			if utf8.RuneCountInString(reference) > maxUTRLength {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "utr number too long").
					WithDetails(map[string]any{"vendor_id": vendorID, "max": maxUTRLength}))
				return
			}
			utr[vendorID] = reference
		}

		if err := svc.FinalizeBatch(actorContext(r), batchID, utr); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, r, svc, logg, batchID, http.StatusOK)
	}
}

// AdminFailPayoutBatch abandons a processing batch and returns its orders to pending.
func AdminFailPayoutBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req failBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.FailBatch(actorContext(r), batchID, req.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeBatch(w, r, svc, logg, batchID, http.StatusOK)
	}
}

// AdminDeletePayoutBatch removes a queued batch and releases its orders.
func AdminDeletePayoutBatch(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		batchID, err := parseUUIDParam(r, "batchId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteBatch(actorContext(r), batchID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminVendorPayoutHistory lists the completed batches that paid a vendor.
func AdminVendorPayoutHistory(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		vendorID, err := parseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.GetVendorPayoutHistory(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payouts.NewBatchViews(history))
	}
}

// AdminReconcileBalances rebuilds the vendor balance cache from the ledger.
func AdminReconcileBalances(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}
		report, err := svc.ReconcileBalances(actorContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func writeBatch(w http.ResponseWriter, r *http.Request, svc payouts.Service, logg *logger.Logger, batchID uuid.UUID, status int) {
	batch, err := svc.GetBatch(r.Context(), batchID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, payouts.NewBatchView(*batch))
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

// actorContext tags outbox events with the operator behind the request.
func actorContext(r *http.Request) context.Context {
	ctx := r.Context()
	return payouts.WithActor(ctx, middleware.UserIDFromContext(ctx), middleware.RoleFromContext(ctx))
}
