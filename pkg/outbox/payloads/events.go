package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// OrderPlacedEvent is sent to the buyer and the vendor when an order is created.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	BuyerID     uuid.UUID         `json:"buyer_id"`
	VendorID    uuid.UUID         `json:"vendor_id"`
	TotalCents  int               `json:"total_cents"`
	Currency    string            `json:"currency"`
	PaymentMode enums.PaymentMode `json:"payment_mode"`
	ItemCount   int               `json:"item_count"`
}

// OrderStatusChangedEvent covers every state machine transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	BuyerID     uuid.UUID         `json:"buyer_id"`
	VendorID    uuid.UUID         `json:"vendor_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Reason      string            `json:"reason,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// DeliveryOTPIssuedEvent tells the notification service to push the code to the buyer.
// The code itself never leaves this service through events.
type DeliveryOTPIssuedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	Resent      bool      `json:"resent"`
}

type PaymentEvent struct {
	PaymentID        uuid.UUID                  `json:"payment_id"`
	OrderID          uuid.UUID                  `json:"order_id"`
	GatewayOrderID   string                     `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string                     `json:"gateway_payment_id,omitempty"`
	AmountCents      int                        `json:"amount_cents"`
	Status           enums.GatewayPaymentStatus `json:"status"`
	Reason           string                     `json:"reason,omitempty"`
}

// DuplicatePaymentEvent flags an order with more than one settled payment for manual review.
type DuplicatePaymentEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	PaymentIDs []uuid.UUID `json:"payment_ids"`
	Code       string      `json:"code"`
}

type RefundEvent struct {
	RefundID        uuid.UUID          `json:"refund_id"`
	OrderID         uuid.UUID          `json:"order_id"`
	PaymentID       *uuid.UUID         `json:"payment_id,omitempty"`
	ReturnRequestID *uuid.UUID         `json:"return_request_id,omitempty"`
	AmountCents     int                `json:"amount_cents"`
	Status          enums.RefundStatus `json:"status"`
	Reason          string             `json:"reason,omitempty"`
}

type ReturnEvent struct {
	ReturnID          uuid.UUID          `json:"return_id"`
	OrderID           uuid.UUID          `json:"order_id"`
	OrderItemID       uuid.UUID          `json:"order_item_id"`
	BuyerID           uuid.UUID          `json:"buyer_id"`
	VendorID          uuid.UUID          `json:"vendor_id"`
	Status            enums.ReturnStatus `json:"status"`
	RefundAmountCents int                `json:"refund_amount_cents"`
}
