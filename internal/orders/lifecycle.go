package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/delivery"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

var errWrongOTP = errors.New("otp mismatch")

// ConfirmOrder is the vendor/admin entry point. Cash-on-delivery orders are
// confirmed this way; online orders normally confirm through payment capture.
func (s *service) ConfirmOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if err := requireRole(actor, enums.ActorRoleVendor, enums.ActorRoleAdmin, enums.ActorRoleSystem); err != nil {
		return nil, err
	}
	var confirmed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeView(order, actor); err != nil {
			return err
		}
		confirmed, err = s.confirmer.ConfirmOrderTx(ctx, tx, orderID, actor.ref())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order confirmed")
	return confirmed, nil
}

func (s *service) AdvanceStatus(ctx context.Context, input AdvanceInput) (*models.Order, error) {
	if err := requireRole(input.Actor, enums.ActorRoleVendor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown target status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeView(order, input.Actor); err != nil {
			return err
		}
		next, ok := NextStatus(order.Status)
		if !ok || next != input.Target {
			return invalidTransition(order.Status, input.Target)
		}

		now := s.now().UTC()
		updates := map[string]any{timestampColumns[next]: now}
		var code string
		if next == enums.OrderStatusOutForDelivery {
			code, err = s.otp.Generate()
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate delivery code")
			}
			updates["delivery_otp"] = code
			updates["otp_generated_at"] = now
		}

		changed, err := repo.UpdateStatus(ctx, order.ID, order.Status, next, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advance order")
		}
		if !changed {
			return invalidTransition(order.Status, next)
		}

		from := order.Status
		order.Status = next
		setTimestamp(order, next, now)
		if err := emitTransition(ctx, s.outbox, tx, order, from, next, "", input.Actor.ref(), now); err != nil {
			return err
		}
		if code != "" {
			order.DeliveryOTP = &code
			order.OTPGeneratedAt = &now
			if err := emitOTPIssued(ctx, s.outbox, tx, order, false, input.Actor.ref()); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status == enums.OrderStatusOutForDelivery {
		if err := s.attempts.Reset(ctx, updated.ID); err != nil {
			s.logg.Warn(s.logg.WithOrderID(ctx, updated.ID.String()), "failed to reset otp attempts")
		}
	}
	s.metrics.Transition(string(updated.Status))
	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": updated.ID.String(), "status": updated.Status})
	s.logg.Info(logCtx, "order advanced")
	return updated, nil
}

// ConfirmDelivery checks the buyer's code and completes the order. A wrong
// code changes nothing on the order; it only counts towards the lockout.
func (s *service) ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error) {
	if err := requireRole(input.Actor, enums.ActorRoleAgent, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	remaining, err := s.attempts.Attempt(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	var delivered *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusOutForDelivery {
			return invalidTransition(order.Status, enums.OrderStatusDelivered)
		}
		stored := ""
		if order.DeliveryOTP != nil {
			stored = *order.DeliveryOTP
		}
		if !delivery.Matches(stored, input.OTP) {
			return errWrongOTP
		}

		now := s.now().UTC()
		updates := map[string]any{
			"delivered_at": now,
			"delivery_otp": nil,
		}
		if order.PaymentMode == enums.PaymentModeCOD {
			updates["payment_status"] = enums.PaymentStatusPaid
		}
		changed, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusDelivered, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deliver order")
		}
		if !changed {
			return invalidTransition(order.Status, enums.OrderStatusDelivered)
		}

		for i := range order.Items {
			item := &order.Items[i]
			if !item.ReturnEligible || item.ReturnWindowDays <= 0 {
				continue
			}
			deadline := now.Add(time.Duration(item.ReturnWindowDays) * 24 * time.Hour)
			if err := repo.UpdateItem(ctx, item.ID, map[string]any{"return_deadline": deadline}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "set return deadline")
			}
			item.ReturnDeadline = &deadline
		}

		actor := input.Actor.ref()
		if order.PaymentMode == enums.PaymentModeCOD {
			var actorID *uuid.UUID
			if input.Actor.UserID != uuid.Nil {
				id := input.Actor.UserID
				actorID = &id
			}
			if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
				OrderID:     order.ID,
				BuyerID:     order.BuyerID,
				VendorID:    order.VendorID,
				ActorID:     actorID,
				Type:        enums.LedgerEventTypeCashCollected,
				AmountCents: order.TotalCents,
			}); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCashCollected,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor,
				OccurredAt:    now,
				Data: payloads.PaymentEvent{
					OrderID:     order.ID,
					AmountCents: order.TotalCents,
					Status:      enums.GatewayPaymentStatusPaid,
				},
			}); err != nil {
				return err
			}
			order.PaymentStatus = enums.PaymentStatusPaid
		}

		from := order.Status
		order.Status = enums.OrderStatusDelivered
		order.DeliveredAt = &now
		order.DeliveryOTP = nil
		if err := emitTransition(ctx, s.outbox, tx, order, from, order.Status, "", actor, now); err != nil {
			return err
		}
		delivered = order
		return nil
	})
	if errors.Is(err, errWrongOTP) {
		s.logg.Warn(s.logg.WithOrderID(ctx, input.OrderID.String()), "delivery code rejected")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidOTP, "delivery code is incorrect").
			WithDetails(map[string]any{"attempts_remaining": remaining})
	}
	if err != nil {
		return nil, err
	}

	if err := s.attempts.Reset(ctx, delivered.ID); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, delivered.ID.String()), "failed to reset otp attempts")
	}
	s.metrics.Transition(string(delivered.Status))
	s.logg.Info(s.logg.WithOrderID(ctx, delivered.ID.String()), "order delivered")
	return delivered, nil
}

// ResendOTP replaces the delivery code and clears the lockout.
func (s *service) ResendOTP(ctx context.Context, orderID uuid.UUID, actor Actor) error {
	if err := requireRole(actor, enums.ActorRoleBuyer, enums.ActorRoleAdmin); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeView(order, actor); err != nil {
			return err
		}
		if order.Status != enums.OrderStatusOutForDelivery {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery code is only available while out for delivery")
		}
		code, err := s.otp.Generate()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate delivery code")
		}
		now := s.now().UTC()
		if err := repo.Update(ctx, order.ID, map[string]any{"delivery_otp": code, "otp_generated_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store delivery code")
		}
		return emitOTPIssued(ctx, s.outbox, tx, order, true, actor.ref())
	})
	if err != nil {
		return err
	}
	return s.attempts.Reset(ctx, orderID)
}

// DeliveryOTP is the only read path for the code. It is shown to the buyer who owns the order.
func (s *service) DeliveryOTP(ctx context.Context, orderID uuid.UUID, actor Actor) (string, error) {
	if err := requireRole(actor, enums.ActorRoleBuyer); err != nil {
		return "", err
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if err := authorizeView(order, actor); err != nil {
		return "", err
	}
	if order.Status != enums.OrderStatusOutForDelivery || order.DeliveryOTP == nil {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "delivery code is only available while out for delivery")
	}
	return *order.DeliveryOTP, nil
}

// MarkReturnedTx moves a delivered order to returned once every item has been
// returned. It reports whether the order changed.
func (s *service) MarkReturnedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != enums.OrderStatusDelivered {
		return false, nil
	}
	for _, item := range order.Items {
		if item.ReturnStatus != enums.ItemReturnStatusReturned {
			return false, nil
		}
	}
	now := s.now().UTC()
	changed, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusDelivered, enums.OrderStatusReturned, map[string]any{"returned_at": now})
	if err != nil || !changed {
		return false, err
	}
	order.Status = enums.OrderStatusReturned
	order.ReturnedAt = &now
	if err := emitTransition(ctx, s.outbox, tx, order, enums.OrderStatusDelivered, enums.OrderStatusReturned, "all items returned", actor.ref(), now); err != nil {
		return false, err
	}
	s.metrics.Transition(string(enums.OrderStatusReturned))
	return true, nil
}

func setTimestamp(order *models.Order, status enums.OrderStatus, at time.Time) {
	switch status {
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &at
	case enums.OrderStatusPicked:
		order.PickedAt = &at
	case enums.OrderStatusPacked:
		order.PackedAt = &at
	case enums.OrderStatusOutForDelivery:
		order.OutForDeliveryAt = &at
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
	case enums.OrderStatusReturned:
		order.ReturnedAt = &at
	}
}
