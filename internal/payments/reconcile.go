package payments

import (
	"context"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// ReconcilePending re-verifies authorized payments, fails gateway orders the
// buyer abandoned, and retries pending refunds. Errors for single rows are
// collected so one bad row does not stall the sweep.
func (r *Reconciler) ReconcilePending(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	var errs error

	authorized, err := r.repo.ListAuthorized(ctx, r.batchSize)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list authorized payments")
	}
	for i := range authorized {
		result, err := r.verifyWithGateway(ctx, &authorized[i], systemActor)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeGatewayAmbiguous):
			report.Ambiguous++
		case err != nil:
			errs = multierr.Append(errs, err)
		case result.Payment.Status == enums.GatewayPaymentStatusFailed:
			report.Failed++
		default:
			report.Verified++
		}
	}

	abandoned, err := r.ExpireAbandoned(ctx)
	report.Abandoned = abandoned
	errs = multierr.Append(errs, err)

	refunds, err := r.repo.ListPendingRefunds(ctx, r.batchSize)
	if err != nil {
		return report, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending refunds"))
	}
	for _, refund := range refunds {
		processed, err := r.ProcessRefund(ctx, refund.ID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeGatewayAmbiguous):
			report.RefundsPending++
		case err != nil:
			errs = multierr.Append(errs, err)
		case processed.Status == enums.RefundStatusProcessed:
			report.RefundsProcessed++
		case processed.Status == enums.RefundStatusFailed:
			report.RefundsFailed++
		}
	}

	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"verified":          report.Verified,
		"ambiguous":         report.Ambiguous,
		"failed":            report.Failed,
		"abandoned":         report.Abandoned,
		"refunds_processed": report.RefundsProcessed,
		"refunds_pending":   report.RefundsPending,
	}), "payment reconciliation finished")
	return report, errs
}

// ExpireAbandoned fails gateway orders that never received a payment within
// the abandon window, so the unpaid-order job can cancel the order. A late
// callback for the same gateway order is still accepted as a new attempt.
func (r *Reconciler) ExpireAbandoned(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.abandonAfter)
	stale, err := r.repo.ListCreatedBefore(ctx, cutoff, r.batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list abandoned payments")
	}
	expired := 0
	now := r.now().UTC()
	for _, p := range stale {
		ok, err := r.repo.UpdatePaymentStatus(ctx, p.ID, enums.GatewayPaymentStatusCreated, enums.GatewayPaymentStatusFailed,
			map[string]any{"failure_reason": "abandoned before payment", "failed_at": now})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expire payment")
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
