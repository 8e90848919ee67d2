package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
)

// CartLine is one requested sell unit and quantity.
type CartLine struct {
	SellUnitID uuid.UUID `json:"sell_unit_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	BuyerID     uuid.UUID
	AddressID   uuid.UUID
	PaymentMode enums.PaymentMode
	Lines       []CartLine
	CouponCode  *string
}

// Actor identifies who is acting on an order. VendorID is set for vendor users.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

// AdvanceInput moves an order one step along the fulfilment path.
type AdvanceInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   Actor
}

// DeliveryInput is what the delivery agent submits at the door.
type DeliveryInput struct {
	OrderID uuid.UUID
	OTP     string
	Actor   Actor
}

type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   Actor
}

// ListFilters narrows order lists. Status values are canonical.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CancelResult reports the cancelled order and any refunds queued for it.
type CancelResult struct {
	Order   *models.Order   `json:"order"`
	Refunds []models.Refund `json:"refunds,omitempty"`
}
