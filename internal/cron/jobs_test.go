package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/pkg/logger"
)

type stubReconciler struct {
	report     *payments.ReconcileReport
	err        error
	calls      int
	duplicates []payments.DuplicateReport
	since      time.Time
}

func (s *stubReconciler) ReconcilePending(ctx context.Context) (*payments.ReconcileReport, error) {
	s.calls++
	return s.report, s.err
}

func (s *stubReconciler) ScanDuplicates(ctx context.Context, since time.Time) ([]payments.DuplicateReport, error) {
	s.since = since
	return s.duplicates, s.err
}

type stubOrders struct {
	confirmLimit int
	confirmErr   error
	cutoff       time.Time
	expireLimit  int
	expireErr    error
}

func (s *stubOrders) ConfirmPaidOrders(ctx context.Context, limit int) (int, error) {
	s.confirmLimit = limit
	return 1, s.confirmErr
}

func (s *stubOrders) ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	s.cutoff = cutoff
	s.expireLimit = limit
	return 2, s.expireErr
}

func TestPaymentReconcileJobConfirmsOrdersEvenWhenSweepFails(t *testing.T) {
	reconciler := &stubReconciler{report: &payments.ReconcileReport{Verified: 1}, err: errors.New("gateway down")}
	orders := &stubOrders{confirmErr: errors.New("db down")}
	job, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:     logger.Nop(),
		Reconciler: reconciler,
		Orders:     orders,
	})
	if err != nil {
		t.Fatalf("NewPaymentReconcileJob: %v", err)
	}

	err = job.Run(context.Background())
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected both failures reported, got %d (%v)", got, err)
	}
	if reconciler.calls != 1 {
		t.Fatalf("expected one reconcile sweep, got %d", reconciler.calls)
	}
	if orders.confirmLimit != defaultBatchSize {
		t.Fatalf("expected default batch %d, got %d", defaultBatchSize, orders.confirmLimit)
	}
}

func TestPaymentReconcileJobRequiresDependencies(t *testing.T) {
	if _, err := NewPaymentReconcileJob(PaymentReconcileJobParams{Logger: logger.Nop(), Orders: &stubOrders{}}); err == nil {
		t.Fatal("expected error without reconciler")
	}
	if _, err := NewPaymentReconcileJob(PaymentReconcileJobParams{Logger: logger.Nop(), Reconciler: &stubReconciler{}}); err == nil {
		t.Fatal("expected error without order service")
	}
}

func TestDuplicateScanJobLooksBackOverWindow(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	scanner := &stubReconciler{duplicates: []payments.DuplicateReport{{OrderID: uuid.New(), Duplicate: true}}}
	jobIface, err := NewDuplicateScanJob(DuplicateScanJobParams{
		Logger:  logger.Nop(),
		Scanner: scanner,
		Window:  24 * time.Hour,
		Every:   15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewDuplicateScanJob: %v", err)
	}
	job := jobIface.(*duplicateScanJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !scanner.since.Equal(want) {
		t.Fatalf("expected since %s, got %s", want, scanner.since)
	}
	if job.Every() != 15*time.Minute {
		t.Fatalf("unexpected cadence %s", job.Every())
	}
}

func TestUnpaidOrderTTLJobUsesCutoffAndBatch(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	orders := &stubOrders{}
	jobIface, err := NewUnpaidOrderTTLJob(UnpaidOrderTTLJobParams{
		Logger:    logger.Nop(),
		Orders:    orders,
		BatchSize: 25,
	})
	if err != nil {
		t.Fatalf("NewUnpaidOrderTTLJob: %v", err)
	}
	job := jobIface.(*unpaidOrderTTLJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultUnpaidTTL); !orders.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, orders.cutoff)
	}
	if orders.expireLimit != 25 {
		t.Fatalf("expected batch 25, got %d", orders.expireLimit)
	}

	orders.expireErr = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
}
