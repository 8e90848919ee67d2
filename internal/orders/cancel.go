package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

const maxCancellationReason = 500

// CancelOrder cancels an undelivered order, returns its stock and queues a
// refund for whatever was captured. It refuses while a payment is in flight.
func (s *service) CancelOrder(ctx context.Context, input CancelInput) (*CancelResult, error) {
	if err := requireRole(input.Actor, enums.ActorRoleBuyer, enums.ActorRoleVendor, enums.ActorRoleAdmin, enums.ActorRoleSystem); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	if len(reason) > maxCancellationReason {
		reason = reason[:maxCancellationReason]
	}

	var result *CancelResult
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeView(order, input.Actor); err != nil {
			return err
		}
		if !Cancellable(order.Status) {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		inFlight, err := repo.CountInFlightPayments(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check payments")
		}
		if inFlight > 0 {
			return pkgerrors.New(pkgerrors.CodePaymentInFlight, "a payment for this order is still being processed; try again shortly").
				WithDetails(map[string]any{"in_flight": inFlight})
		}

		if err := s.inventory.ReleaseOrder(ctx, tx, order.ID); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{
			"cancelled_at":        now,
			"cancellation_reason": reason,
			"delivery_otp":        nil,
		}
		if input.Actor.UserID != uuid.Nil {
			updates["cancelled_by"] = input.Actor.UserID
		}
		changed, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		if !changed {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		var refunds []models.Refund
		if order.PaymentMode == enums.PaymentModeOnline && holdsCapturedFunds(order.PaymentStatus) {
			if s.refunds == nil {
				return pkgerrors.New(pkgerrors.CodeDependency, "refunds are not available")
			}
			var initiatedBy *uuid.UUID
			if input.Actor.UserID != uuid.Nil {
				id := input.Actor.UserID
				initiatedBy = &id
			}
			refunds, err = s.refunds.QueueOrderRefundTx(ctx, tx, order.ID, "order cancelled: "+reason, initiatedBy)
			if err != nil {
				return err
			}
		}

		from := order.Status
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancellationReason = &reason
		order.DeliveryOTP = nil
		if err := emitTransition(ctx, s.outbox, tx, order, from, order.Status, reason, input.Actor.ref(), now); err != nil {
			return err
		}
		result = &CancelResult{Order: order, Refunds: refunds}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(enums.OrderStatusCancelled))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   result.Order.ID.String(),
		"actor_role": input.Actor.Role,
		"refunds":    len(result.Refunds),
	})
	s.logg.Info(logCtx, "order cancelled")

	// Gateway calls happen after commit; anything left pending is retried by the reconcile job.
	for i, refund := range result.Refunds {
		processed, err := s.refunds.ProcessRefund(ctx, refund.ID)
		if err != nil {
			s.logg.Error(s.logg.WithField(logCtx, "refund_id", refund.ID.String()), "refund processing deferred", err)
			continue
		}
		result.Refunds[i] = *processed
	}
	return result, nil
}

// ExpireUnpaid cancels online orders that never got paid. Orders with a
// payment still in flight are skipped and picked up on a later run.
func (s *service) ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	orders, err := s.repo.ListUnpaidBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, order := range orders {
		_, err := s.CancelOrder(ctx, CancelInput{
			OrderID: order.ID,
			Reason:  "payment not received in time",
			Actor:   SystemActor,
		})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodePaymentInFlight), pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
			continue
		default:
			return expired, err
		}
	}
	return expired, nil
}

// ConfirmPaidOrders re-drives confirmation for orders whose payment was
// recorded but whose confirmation did not commit.
func (s *service) ConfirmPaidOrders(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListPaidAwaitingConfirmation(ctx, limit)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, id := range ids {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.confirmer.ConfirmOrderTx(ctx, tx, id, SystemActor.ref())
			return err
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				continue
			}
			return confirmed, err
		}
		confirmed++
	}
	return confirmed, nil
}

// holdsCapturedFunds reports whether some captured money has not been refunded yet.
func holdsCapturedFunds(status enums.PaymentStatus) bool {
	switch status {
	case enums.PaymentStatusPaid, enums.PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}
