package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// View is the priced cart returned to the buyer.
type View struct {
	BuyerID          uuid.UUID  `json:"buyer_id"`
	VendorID         *uuid.UUID `json:"vendor_id,omitempty"`
	Lines            []LineView `json:"lines"`
	CouponCode       *string    `json:"coupon_code,omitempty"`
	Currency         string     `json:"currency"`
	SubtotalCents    int        `json:"subtotal_cents"`
	DiscountCents    int        `json:"discount_cents"`
	DeliveryFeeCents int        `json:"delivery_fee_cents"`
	TaxCents         int        `json:"tax_cents"`
	TotalCents       int        `json:"total_cents"`
	Warnings         []string   `json:"warnings,omitempty"`
}

// LineView is one cart line at the current catalog price. Unavailable lines
// are kept so the buyer can see and remove them.
type LineView struct {
	SellUnitID     uuid.UUID `json:"sell_unit_id"`
	ProductName    string    `json:"product_name"`
	Label          string    `json:"label"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	LineTotalCents int       `json:"line_total_cents"`
	Available      bool      `json:"available"`
}

func (l LineView) displayName() string {
	if l.ProductName == "" {
		return "an item"
	}
	if l.Label == "" {
		return l.ProductName
	}
	return l.ProductName + " (" + l.Label + ")"
}

// CheckoutInput is what the buyer submits to turn the cart into an order.
type CheckoutInput struct {
	BuyerID     uuid.UUID         `json:"-"`
	AddressID   uuid.UUID         `json:"address_id" validate:"required"`
	PaymentMode enums.PaymentMode `json:"payment_mode" validate:"required,oneof=online cod"`
}
