package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

const defaultBatchSize = 200

type pendingReconciler interface {
	ReconcilePending(ctx context.Context) (*payments.ReconcileReport, error)
}

type paidOrderConfirmer interface {
	ConfirmPaidOrders(ctx context.Context, limit int) (int, error)
}

type duplicateScanner interface {
	ScanDuplicates(ctx context.Context, since time.Time) ([]payments.DuplicateReport, error)
}

// PaymentReconcileJobParams configure the payment-reconcile job.
type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler pendingReconciler
	Orders     paidOrderConfirmer
	BatchSize  int
}

// NewPaymentReconcileJob re-verifies unresolved payments, retries pending
// refunds and confirms paid orders a crashed callback left in placed.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		orders:     params.Orders,
		batch:      batch,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	reconciler pendingReconciler
	orders     paidOrderConfirmer
	batch      int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	var errs error
	report, err := j.reconciler.ReconcilePending(ctx)
	errs = multierr.Append(errs, err)
	confirmed, err := j.orders.ConfirmPaidOrders(ctx, j.batch)
	errs = multierr.Append(errs, err)

	fields := map[string]any{"orders_confirmed": confirmed}
	if report != nil {
		fields["verified"] = report.Verified
		fields["ambiguous"] = report.Ambiguous
		fields["failed"] = report.Failed
		fields["abandoned"] = report.Abandoned
		fields["refunds_processed"] = report.RefundsProcessed
		fields["refunds_pending"] = report.RefundsPending
		fields["refunds_failed"] = report.RefundsFailed
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "payment reconcile pass complete")
	return errs
}

// DuplicateScanJobParams configure the duplicate-payment-scan job.
type DuplicateScanJobParams struct {
	Logger  *logger.Logger
	Scanner duplicateScanner
	Window  time.Duration
	Every   time.Duration
}

func NewDuplicateScanJob(params DuplicateScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scanner == nil {
		return nil, fmt.Errorf("duplicate scanner required")
	}
	window := params.Window
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &duplicateScanJob{
		logg:    params.Logger,
		scanner: params.Scanner,
		window:  window,
		every:   params.Every,
		now:     time.Now,
	}, nil
}

type duplicateScanJob struct {
	logg    *logger.Logger
	scanner duplicateScanner
	window  time.Duration
	every   time.Duration
	now     func() time.Time
}

func (j *duplicateScanJob) Name() string         { return "duplicate-payment-scan" }
func (j *duplicateScanJob) Every() time.Duration { return j.every }

func (j *duplicateScanJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.window)
	reports, err := j.scanner.ScanDuplicates(ctx, since)
	if err != nil {
		return fmt.Errorf("scan duplicates: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"since":           since,
		"orders_affected": len(reports),
	}), "duplicate payment scan complete")
	return nil
}
