package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

var transitionEvents = map[enums.OrderStatus]enums.OutboxEventType{
	enums.OrderStatusConfirmed:      enums.EventOrderConfirmed,
	enums.OrderStatusOutForDelivery: enums.EventOrderOutForDelivery,
	enums.OrderStatusDelivered:      enums.EventOrderDelivered,
	enums.OrderStatusCancelled:      enums.EventOrderCancelled,
	enums.OrderStatusReturned:       enums.EventOrderReturned,
}

func emitTransition(ctx context.Context, pub outboxPublisher, tx *gorm.DB, order *models.Order, from, to enums.OrderStatus, reason string, actor *outbox.ActorRef, at time.Time) error {
	eventType, ok := transitionEvents[to]
	if !ok {
		eventType = enums.EventOrderStatusChanged
	}
	return pub.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    at,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     order.BuyerID,
			VendorID:    order.VendorID,
			From:        from,
			To:          to,
			Reason:      reason,
			ChangedAt:   at,
		},
	})
}

func emitOTPIssued(ctx context.Context, pub outboxPublisher, tx *gorm.DB, order *models.Order, resent bool, actor *outbox.ActorRef) error {
	return pub.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDeliveryOTPIssued,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.DeliveryOTPIssuedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     order.BuyerID,
			Resent:      resent,
		},
	})
}

func (a Actor) ref() *outbox.ActorRef {
	role := string(a.Role)
	if role == "" {
		role = string(enums.ActorRoleSystem)
	}
	ref := &outbox.ActorRef{Role: role}
	if a.UserID != uuid.Nil {
		id := a.UserID
		ref.UserID = &id
	}
	return ref
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: enums.ActorRoleSystem}
