package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/gateway"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

const maxRefundError = 500

// InitiateRefund queues a refund and sends it to the gateway after commit.
func (r *Reconciler) InitiateRefund(ctx context.Context, input RefundInput) (*models.Refund, error) {
	var refund *models.Refund
	err := r.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		var err error
		refund, err = r.QueueRefundTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	processed, err := r.ProcessRefund(ctx, refund.ID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeGatewayAmbiguous) {
			return refund, nil
		}
		return nil, err
	}
	return processed, nil
}

// QueueRefundTx records a pending refund inside tx and reserves its amount on
// the payment, so concurrent refunds can never exceed what was captured.
func (r *Reconciler) QueueRefundTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*models.Refund, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}

	repo := r.repo.WithTx(tx)
	payment, err := repo.LockPayment(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.Settled() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only captured payments can be refunded").
			WithDetails(map[string]any{"payment_status": payment.Status})
	}

	amount := payment.AmountCents
	if input.AmountCents != nil {
		amount = *input.AmountCents
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	refundable := payment.RefundableCents()
	if amount > refundable {
		return nil, pkgerrors.New(pkgerrors.CodeRefundExceedsBalance, "refund exceeds the refundable balance").
			WithDetails(map[string]any{
				"requested_cents":  amount,
				"refundable_cents": refundable,
			})
	}

	refund := &models.Refund{
		PaymentID:       &payment.ID,
		OrderID:         payment.OrderID,
		ReturnRequestID: input.ReturnRequestID,
		AmountCents:     amount,
		Reason:          reason,
		Status:          enums.RefundStatusPending,
		InitiatedBy:     input.InitiatedBy,
	}
	if err := repo.CreateRefund(ctx, refund); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist refund")
	}
	if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{"refunded_cents": payment.RefundedCents + amount}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve refund balance")
	}
	if err := r.emitRefund(ctx, tx, enums.EventRefundInitiated, refund, actorFromID(input.InitiatedBy)); err != nil {
		return nil, err
	}
	r.metrics.Refund(string(enums.RefundStatusPending))
	return refund, nil
}

// QueueOrderRefundTx queues a refund of the remaining balance of every settled
// payment on the order.
func (r *Reconciler) QueueOrderRefundTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, initiatedBy *uuid.UUID) ([]models.Refund, error) {
	payments, err := r.repo.WithTx(tx).ListByOrder(ctx, orderID, settledStatuses...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settled payments")
	}
	var refunds []models.Refund
	for _, p := range payments {
		amount := p.RefundableCents()
		if amount <= 0 {
			continue
		}
		refund, err := r.QueueRefundTx(ctx, tx, RefundInput{
			PaymentID:   p.ID,
			AmountCents: &amount,
			Reason:      reason,
			InitiatedBy: initiatedBy,
		})
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *refund)
	}
	return refunds, nil
}

// QueueReturnRefundTx refunds an approved return against the order's original
// settled payment. Duplicate captures are refunded separately by support.
func (r *Reconciler) QueueReturnRefundTx(ctx context.Context, tx *gorm.DB, orderID, returnID uuid.UUID, amountCents int, reason string, initiatedBy *uuid.UUID) (*models.Refund, error) {
	payments, err := r.repo.WithTx(tx).ListByOrder(ctx, orderID, settledStatuses...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settled payments")
	}
	for _, p := range payments {
		if p.DuplicateOf != nil {
			continue
		}
		return r.QueueRefundTx(ctx, tx, RefundInput{
			PaymentID:       p.ID,
			AmountCents:     &amountCents,
			Reason:          reason,
			ReturnRequestID: &returnID,
			InitiatedBy:     initiatedBy,
		})
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment to refund").
		WithDetails(map[string]any{"order_id": orderID.String()})
}

// ProcessRefund sends a pending refund to the gateway. Ambiguous answers leave
// it pending for the reconcile job; a definitive rejection fails it and
// releases the reserved balance. Non-pending refunds are returned unchanged.
func (r *Reconciler) ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	refund, err := r.repo.FindRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status != enums.RefundStatusPending {
		return refund, nil
	}
	if refund.PaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund is not linked to a gateway payment")
	}
	payment, err := r.repo.FindPayment(ctx, *refund.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.GatewayPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment has no gateway payment id")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	res, err := r.gateway.Refund(callCtx, *payment.GatewayPaymentID, refund.AmountCents, refund.ID.String())
	cancel()
	switch {
	case err != nil && gateway.IsAmbiguous(err):
		if uerr := r.repo.UpdateRefund(ctx, refund.ID, map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(err.Error()),
		}); uerr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, uerr, "record refund attempt")
		}
		r.logg.Warn(r.logg.WithField(ctx, "refund_id", refund.ID.String()), "refund outcome unknown; will retry")
		return refund, pkgerrors.Wrap(pkgerrors.CodeGatewayAmbiguous, err, "refund pending at gateway")
	case err != nil:
		return r.failRefund(ctx, refund.ID, err.Error())
	case res.Failed():
		return r.failRefund(ctx, refund.ID, "gateway rejected refund")
	default:
		return r.completeRefund(ctx, refund.ID, res.ID)
	}
}

func (r *Reconciler) completeRefund(ctx context.Context, refundID uuid.UUID, gatewayRefundID string) (*models.Refund, error) {
	var refund *models.Refund
	err := r.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		current, err := repo.FindRefund(ctx, refundID)
		if err != nil {
			return err
		}
		order, err := r.orders.WithTx(tx).LockByID(ctx, current.OrderID)
		if err != nil {
			return err
		}
		refund, err = repo.LockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != enums.RefundStatusPending {
			return nil
		}

		now := r.now().UTC()
		updates := map[string]any{
			"status":       enums.RefundStatusProcessed,
			"processed_at": now,
			"attempts":     refund.Attempts + 1,
			"last_error":   nil,
		}
		if gatewayRefundID != "" {
			updates["gateway_refund_id"] = gatewayRefundID
			refund.GatewayRefundID = &gatewayRefundID
		}
		if err := repo.UpdateRefund(ctx, refund.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete refund")
		}
		refund.Status = enums.RefundStatusProcessed
		refund.ProcessedAt = &now
		refund.Attempts++

		reference := refund.ID.String()
		if refund.GatewayRefundID != nil {
			reference = *refund.GatewayRefundID
		}
		if _, err := r.ledger.RecordEvent(ctx, tx, ledgerInput(order, enums.LedgerEventTypeRefund, refund.AmountCents, &reference, actorFromID(refund.InitiatedBy))); err != nil {
			return err
		}

		status, err := r.refundedStatus(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		if err := r.orders.WithTx(tx).Update(ctx, order.ID, map[string]any{"payment_status": status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order payment status")
		}
		return r.emitRefund(ctx, tx, enums.EventRefundProcessed, refund, actorFromID(refund.InitiatedBy))
	})
	if err != nil {
		return nil, err
	}
	r.metrics.Refund(string(refund.Status))
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"refund_id": refund.ID.String(),
		"order_id":  refund.OrderID.String(),
		"amount":    refund.AmountCents,
	}), "refund processed")
	return refund, nil
}

// refundedStatus compares processed refunds with captured money for the order.
func (r *Reconciler) refundedStatus(ctx context.Context, repo Repository, orderID uuid.UUID) (enums.PaymentStatus, error) {
	payments, err := repo.ListByOrder(ctx, orderID, settledStatuses...)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settled payments")
	}
	refunds, err := repo.ListRefundsByOrder(ctx, orderID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refunds")
	}
	captured, refunded := 0, 0
	for _, p := range payments {
		captured += p.AmountCents
	}
	for _, rf := range refunds {
		if rf.Status == enums.RefundStatusProcessed {
			refunded += rf.AmountCents
		}
	}
	if refunded >= captured {
		return enums.PaymentStatusRefunded, nil
	}
	return enums.PaymentStatusPartiallyRefunded, nil
}

func (r *Reconciler) failRefund(ctx context.Context, refundID uuid.UUID, cause string) (*models.Refund, error) {
	var refund *models.Refund
	err := r.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		var err error
		refund, err = repo.LockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != enums.RefundStatusPending {
			return nil
		}
		message := truncate(cause)
		if err := repo.UpdateRefund(ctx, refund.ID, map[string]any{
			"status":     enums.RefundStatusFailed,
			"attempts":   refund.Attempts + 1,
			"last_error": message,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail refund")
		}
		refund.Status = enums.RefundStatusFailed
		refund.LastError = &message
		refund.Attempts++

		payment, err := repo.LockPayment(ctx, *refund.PaymentID)
		if err != nil {
			return err
		}
		released := payment.RefundedCents - refund.AmountCents
		if released < 0 {
			released = 0
		}
		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{"refunded_cents": released}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release refund balance")
		}
		return r.emitRefund(ctx, tx, enums.EventRefundFailed, refund, systemActor)
	})
	if err != nil {
		return nil, err
	}
	r.metrics.Refund(string(refund.Status))
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"refund_id": refund.ID.String(),
		"order_id":  refund.OrderID.String(),
	}), "refund failed at gateway")
	return refund, nil
}

// ListRefunds returns every refund recorded for an order.
func (r *Reconciler) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	return r.repo.ListRefundsByOrder(ctx, orderID)
}

func (r *Reconciler) emitRefund(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, refund *models.Refund, actor *outbox.ActorRef) error {
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Actor:         actor,
		Data: payloads.RefundEvent{
			RefundID:        refund.ID,
			OrderID:         refund.OrderID,
			PaymentID:       refund.PaymentID,
			ReturnRequestID: refund.ReturnRequestID,
			AmountCents:     refund.AmountCents,
			Status:          refund.Status,
			Reason:          refund.Reason,
		},
		OccurredAt: r.now().UTC(),
	})
}

func ledgerInput(order *models.Order, eventType enums.LedgerEventType, amount int, reference *string, actor *outbox.ActorRef) ledger.RecordLedgerEventInput {
	input := ledger.RecordLedgerEventInput{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		VendorID:    order.VendorID,
		Type:        eventType,
		AmountCents: amount,
		Reference:   reference,
	}
	if actor != nil {
		input.ActorID = actor.UserID
	}
	return input
}

// actorFromID attributes refund events. The initiator's role is not stored on
// the refund, so a known initiator is reported as a plain user.
func actorFromID(id *uuid.UUID) *outbox.ActorRef {
	if id == nil {
		return systemActor
	}
	return &outbox.ActorRef{UserID: id, Role: "user"}
}

func truncate(message string) string {
	if len(message) > maxRefundError {
		return message[:maxRefundError]
	}
	return message
}
