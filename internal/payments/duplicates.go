package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

var duplicateCandidateStatuses = []enums.GatewayPaymentStatus{
	enums.GatewayPaymentStatusAuthorized,
	enums.GatewayPaymentStatusCaptured,
	enums.GatewayPaymentStatusPaid,
}

// DetectDuplicates lists the order's authorized or settled payments. It never
// changes state; more than one is reported for manual review.
func (r *Reconciler) DetectDuplicates(ctx context.Context, orderID uuid.UUID) (*DuplicateReport, error) {
	payments, err := r.repo.ListByOrder(ctx, orderID, duplicateCandidateStatuses...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payments")
	}
	report := &DuplicateReport{OrderID: orderID, Payments: payments, Duplicate: len(payments) > 1}
	if report.Duplicate {
		report.Code = string(pkgerrors.CodeDuplicatePayment)
	}
	return report, nil
}

// ScanDuplicates sweeps orders with payments created since the cutoff and
// emits one advisory event per duplicated order.
func (r *Reconciler) ScanDuplicates(ctx context.Context, since time.Time) ([]DuplicateReport, error) {
	orderIDs, err := r.repo.ListOrdersWithMultipleSettled(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan payments")
	}

	reports := make([]DuplicateReport, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		report, err := r.DetectDuplicates(ctx, orderID)
		if err != nil {
			return reports, err
		}
		if !report.Duplicate {
			continue
		}
		ids := make([]uuid.UUID, 0, len(report.Payments))
		for _, p := range report.Payments {
			ids = append(ids, p.ID)
		}
		err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDuplicatePayment,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Actor:         systemActor,
				Data: payloads.DuplicatePaymentEvent{
					OrderID:    orderID,
					PaymentIDs: ids,
					Code:       report.Code,
				},
				OccurredAt: r.now().UTC(),
			})
		})
		if err != nil {
			return reports, err
		}
		reports = append(reports, *report)
	}

	r.metrics.SetDuplicateOrders(len(reports))
	if len(reports) > 0 {
		r.logg.Warn(r.logg.WithField(ctx, "orders", len(reports)), "duplicate payments found")
	}
	return reports, nil
}
