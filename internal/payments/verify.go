package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/gateway"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

// VerifyCallback checks the checkout signature, confirms the payment status
// with the gateway and applies the outcome. Repeating a callback is a no-op.
// An inconclusive gateway answer leaves the payment authorized and returns
// GATEWAY_AMBIGUOUS; it is retried by ReconcilePending.
func (r *Reconciler) VerifyCallback(ctx context.Context, input CallbackInput) (*VerifyResult, error) {
	input.GatewayOrderID = strings.TrimSpace(input.GatewayOrderID)
	input.GatewayPaymentID = strings.TrimSpace(input.GatewayPaymentID)
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id and payment id are required")
	}
	if !r.signer.VerifyPayment(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		r.metrics.Verification("invalid_signature")
		r.logg.Warn(r.logg.WithField(ctx, "gateway_order_id", input.GatewayOrderID), "payment signature rejected")
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "payment signature is invalid").
			WithDetails(map[string]any{"next": "order"})
	}

	payment, done, err := r.attachPayment(ctx, input.GatewayOrderID, input.GatewayPaymentID, input.BuyerID)
	if err != nil {
		return nil, err
	}
	if done {
		return r.finished(ctx, payment)
	}

	result, err := r.verifyWithGateway(ctx, payment, r.actorFor(input.BuyerID))
	if err != nil {
		return result, err
	}
	if result.Payment.Status == enums.GatewayPaymentStatusFailed {
		return result, paymentFailed(result.Payment)
	}
	return result, nil
}

// finished reports a payment that an earlier callback already resolved.
func (r *Reconciler) finished(ctx context.Context, payment *models.Payment) (*VerifyResult, error) {
	order, err := r.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	result := &VerifyResult{
		Payment:          payment,
		Order:            order,
		Duplicate:        payment.DuplicateOf != nil,
		AlreadyProcessed: true,
	}
	if payment.Status == enums.GatewayPaymentStatusFailed {
		return result, paymentFailed(payment)
	}
	return result, nil
}

// attachPayment finds or creates the payment row for a gateway order and
// payment pair and moves it to authorized. done reports that the row was
// already resolved by an earlier call.
func (r *Reconciler) attachPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID string, buyerID *uuid.UUID) (*models.Payment, bool, error) {
	var (
		payment *models.Payment
		done    bool
	)
	err := r.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		latest, err := repo.FindLatestByGatewayOrder(ctx, gatewayOrderID)
		if err != nil {
			return err
		}
		order, err := r.orders.WithTx(tx).LockByID(ctx, latest.OrderID)
		if err != nil {
			return err
		}
		if buyerID != nil && order.BuyerID != *buyerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}

		existing, err := repo.FindByGatewayIDs(ctx, gatewayOrderID, gatewayPaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
		}
		if existing != nil {
			payment, err = repo.LockPayment(ctx, existing.ID)
			if err != nil {
				return err
			}
			done = payment.Status != enums.GatewayPaymentStatusAuthorized
			return nil
		}

		if latest.Status == enums.GatewayPaymentStatusCreated && latest.GatewayPaymentID == nil {
			ok, err := repo.UpdatePaymentStatus(ctx, latest.ID, enums.GatewayPaymentStatusCreated, enums.GatewayPaymentStatusAuthorized,
				map[string]any{"gateway_payment_id": gatewayPaymentID})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "authorize payment")
			}
			if ok {
				id := gatewayPaymentID
				latest.Status = enums.GatewayPaymentStatusAuthorized
				latest.GatewayPaymentID = &id
				payment = latest
				return nil
			}
		}

		// A second payment against the same gateway order: a retry after a
		// failure, or a duplicate charge. settle tells them apart.
		id := gatewayPaymentID
		payment = &models.Payment{
			OrderID:          latest.OrderID,
			GatewayOrderID:   gatewayOrderID,
			GatewayPaymentID: &id,
			AmountCents:      latest.AmountCents,
			Currency:         latest.Currency,
			Status:           enums.GatewayPaymentStatusAuthorized,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment attempt")
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payment, done, nil
}

// verifyWithGateway asks the gateway for the payment status and applies it.
func (r *Reconciler) verifyWithGateway(ctx context.Context, payment *models.Payment, actor *outbox.ActorRef) (*VerifyResult, error) {
	if payment.GatewayPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment has no gateway payment id")
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	info, err := r.gateway.FetchPayment(callCtx, *payment.GatewayPaymentID)
	cancel()
	if err != nil {
		if gateway.IsAmbiguous(err) {
			return nil, r.markAmbiguous(ctx, payment, err)
		}
		return r.settle(ctx, payment.ID, enums.GatewayPaymentStatusFailed, "gateway rejected lookup: "+err.Error(), actor)
	}
	return r.applyGatewayStatus(ctx, payment, info, actor)
}

func (r *Reconciler) applyGatewayStatus(ctx context.Context, payment *models.Payment, info *gateway.PaymentInfo, actor *outbox.ActorRef) (*VerifyResult, error) {
	status, known := info.LocalStatus()
	if !known || status.InFlight() {
		return nil, r.markAmbiguous(ctx, payment, fmt.Errorf("gateway status %q", info.Status))
	}
	if info.OrderID != "" && info.OrderID != payment.GatewayOrderID {
		return r.settle(ctx, payment.ID, enums.GatewayPaymentStatusFailed, "payment belongs to a different gateway order", actor)
	}
	switch status {
	case enums.GatewayPaymentStatusCaptured:
		if info.AmountCents != 0 && info.AmountCents != payment.AmountCents {
			r.logg.Error(r.logg.WithPaymentID(ctx, payment.ID.String()), "captured amount mismatch",
				fmt.Errorf("captured %d expected %d", info.AmountCents, payment.AmountCents))
			return r.settle(ctx, payment.ID, enums.GatewayPaymentStatusFailed,
				fmt.Sprintf("captured amount %d does not match expected %d", info.AmountCents, payment.AmountCents), actor)
		}
		return r.settle(ctx, payment.ID, enums.GatewayPaymentStatusCaptured, "", actor)
	default:
		return r.settle(ctx, payment.ID, enums.GatewayPaymentStatusFailed, info.FailureReason(), actor)
	}
}

// markAmbiguous records an inconclusive verification. The payment stays authorized.
func (r *Reconciler) markAmbiguous(ctx context.Context, payment *models.Payment, cause error) error {
	attempts := payment.VerificationAttempts + 1
	if err := r.repo.UpdatePayment(ctx, payment.ID, map[string]any{
		"verification_attempts": gorm.Expr("verification_attempts + 1"),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record verification attempt")
	}
	r.metrics.Verification("ambiguous")

	logCtx := r.logg.WithFields(r.logg.WithPaymentID(ctx, payment.ID.String()), map[string]any{
		"order_id":              payment.OrderID.String(),
		"verification_attempts": attempts,
	})
	if r.maxAttempts > 0 && attempts >= r.maxAttempts {
		r.logg.Error(logCtx, "payment still unresolved after max verification attempts; needs manual review", cause)
	} else {
		r.logg.Warn(logCtx, "payment verification inconclusive")
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayAmbiguous, cause, "payment verification pending").
		WithDetails(map[string]any{"payment_id": payment.ID, "order_id": payment.OrderID})
}

// settle moves an authorized payment to its final status and updates the order.
// Only the first settled payment pays for the order; later ones are flagged as
// duplicates for manual review.
func (r *Reconciler) settle(ctx context.Context, paymentID uuid.UUID, outcome enums.GatewayPaymentStatus, reason string, actor *outbox.ActorRef) (*VerifyResult, error) {
	var (
		result  *VerifyResult
		refunds []models.Refund
	)
	err := r.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		refunds = nil
		repo := r.repo.WithTx(tx)
		orderRepo := r.orders.WithTx(tx)

		current, err := repo.FindPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		order, err := orderRepo.LockByID(ctx, current.OrderID)
		if err != nil {
			return err
		}
		payment, err := repo.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		result = &VerifyResult{Payment: payment, Order: order}
		if payment.Status != enums.GatewayPaymentStatusAuthorized {
			result.AlreadyProcessed = true
			result.Duplicate = payment.DuplicateOf != nil
			return nil
		}

		now := r.now().UTC()
		if outcome == enums.GatewayPaymentStatusFailed {
			ok, err := repo.UpdatePaymentStatus(ctx, payment.ID, enums.GatewayPaymentStatusAuthorized, enums.GatewayPaymentStatusFailed,
				map[string]any{"failure_reason": reason, "failed_at": now})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail payment")
			}
			if !ok {
				result.AlreadyProcessed = true
				return nil
			}
			payment.Status = enums.GatewayPaymentStatusFailed
			payment.FailureReason = &reason
			payment.FailedAt = &now
			if order.Status == enums.OrderStatusPlaced && order.PaymentStatus == enums.PaymentStatusPending {
				if err := orderRepo.Update(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusFailed}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order payment status")
				}
				order.PaymentStatus = enums.PaymentStatusFailed
			}
			return r.emitPayment(ctx, tx, enums.EventPaymentFailed, payment, reason, actor)
		}

		ok, err := repo.UpdatePaymentStatus(ctx, payment.ID, enums.GatewayPaymentStatusAuthorized, enums.GatewayPaymentStatusCaptured,
			map[string]any{"captured_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "capture payment")
		}
		if !ok {
			result.AlreadyProcessed = true
			return nil
		}
		payment.Status = enums.GatewayPaymentStatusCaptured
		payment.CapturedAt = &now

		settled, err := repo.ListByOrder(ctx, order.ID, settledStatuses...)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settled payments")
		}
		var original *models.Payment
		for i := range settled {
			if settled[i].ID != payment.ID {
				original = &settled[i]
				break
			}
		}
		if original != nil {
			if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{"duplicate_of": original.ID}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag duplicate payment")
			}
			payment.DuplicateOf = &original.ID
			result.Duplicate = true
			ids := make([]uuid.UUID, 0, len(settled))
			for _, p := range settled {
				ids = append(ids, p.ID)
			}
			if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDuplicatePayment,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         systemActor,
				Data: payloads.DuplicatePaymentEvent{
					OrderID:    order.ID,
					PaymentIDs: ids,
					Code:       string(pkgerrors.CodeDuplicatePayment),
				},
				OccurredAt: now,
			}); err != nil {
				return err
			}
			return r.emitPayment(ctx, tx, enums.EventPaymentCaptured, payment, "", actor)
		}

		if err := orderRepo.Update(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusPaid}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		order.PaymentStatus = enums.PaymentStatusPaid

		reference := *payment.GatewayPaymentID
		recorded, err := r.ledger.HasEvent(ctx, tx, order.ID, enums.LedgerEventTypePaymentCaptured, &reference)
		if err != nil {
			return err
		}
		if !recorded {
			if _, err := r.ledger.RecordEvent(ctx, tx, ledgerInput(order, enums.LedgerEventTypePaymentCaptured, payment.AmountCents, &reference, actor)); err != nil {
				return err
			}
		}
		if err := r.emitPayment(ctx, tx, enums.EventPaymentCaptured, payment, "", actor); err != nil {
			return err
		}

		switch order.Status {
		case enums.OrderStatusPlaced:
			confirmed, err := r.confirmer.ConfirmOrderTx(ctx, tx, order.ID, actor)
			if err != nil {
				return err
			}
			result.Order = confirmed
		case enums.OrderStatusCancelled:
			amount := payment.AmountCents
			refund, err := r.QueueRefundTx(ctx, tx, RefundInput{
				PaymentID:   payment.ID,
				AmountCents: &amount,
				Reason:      "payment captured after order was cancelled",
			})
			if err != nil {
				return err
			}
			refunds = append(refunds, *refund)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyProcessed {
		outcomeLabel := string(result.Payment.Status)
		if result.Duplicate {
			outcomeLabel = "duplicate"
		}
		r.metrics.Verification(outcomeLabel)
		logCtx := r.logg.WithFields(r.logg.WithPaymentID(ctx, paymentID.String()), map[string]any{
			"order_id":  result.Payment.OrderID.String(),
			"outcome":   outcomeLabel,
			"duplicate": result.Duplicate,
		})
		if result.Duplicate {
			r.logg.Warn(logCtx, "duplicate payment captured; flagged for review")
		} else {
			r.logg.Info(logCtx, "payment settled")
		}
	}

	for _, refund := range refunds {
		if _, err := r.ProcessRefund(ctx, refund.ID); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "refund_id", refund.ID.String()), "refund processing deferred", err)
		}
	}
	return result, nil
}

func (r *Reconciler) emitPayment(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, reason string, actor *outbox.ActorRef) error {
	data := payloads.PaymentEvent{
		PaymentID:      payment.ID,
		OrderID:        payment.OrderID,
		GatewayOrderID: payment.GatewayOrderID,
		AmountCents:    payment.AmountCents,
		Status:         payment.Status,
		Reason:         reason,
	}
	if payment.GatewayPaymentID != nil {
		data.GatewayPaymentID = *payment.GatewayPaymentID
	}
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		Data:          data,
		OccurredAt:    r.now().UTC(),
	})
}
