package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

type balanceReconciler interface {
	ReconcileBalances(ctx context.Context) (*payouts.ReconcileReport, error)
}

type PayoutReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler balanceReconciler
}

// NewPayoutReconcileJob rebuilds the vendor balance cache from the order ledger each cycle.
func NewPayoutReconcileJob(params PayoutReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &payoutReconcileJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type payoutReconcileJob struct {
	logg       *logger.Logger
	reconciler balanceReconciler
}

func (j *payoutReconcileJob) Name() string { return "payout-balance-reconcile" }

func (j *payoutReconcileJob) Run(ctx context.Context) error {
	report, err := j.reconciler.ReconcileBalances(ctx)
	if err != nil {
		return fmt.Errorf("reconcile vendor balances: %w", err)
	}
	if report == nil {
		report = &payouts.ReconcileReport{}
	}
	for _, c := range report.Corrections {
		j.logg.Warn(j.logg.WithFields(j.logg.WithVendorID(ctx, c.VendorID.String()), map[string]any{
			"pending_before_cents": c.PendingBeforeCents,
			"pending_after_cents":  c.PendingAfterCents,
			"payouts_before_cents": c.PayoutsBeforeCents,
			"payouts_after_cents":  c.PayoutsAfterCents,
		}), "vendor balance drift corrected")
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"vendors_scanned":   report.VendorsScanned,
		"vendors_corrected": report.VendorsCorrected,
	}), "vendor balance reconcile complete")
	return nil
}
