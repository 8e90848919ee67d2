package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/types"
)

// Order is a buyer's purchase from a single vendor.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber        string                `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	BuyerID            uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	VendorID           uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	DeliveryAddress    types.AddressSnapshot `gorm:"column:delivery_address;type:jsonb;serializer:json;not null" json:"delivery_address"`
	SubtotalCents      int                   `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	DeliveryFeeCents   int                   `gorm:"column:delivery_fee_cents;not null;default:0" json:"delivery_fee_cents"`
	DiscountCents      int                   `gorm:"column:discount_cents;not null;default:0" json:"discount_cents"`
	TaxCents           int                   `gorm:"column:tax_cents;not null;default:0" json:"tax_cents"`
	TotalCents         int                   `gorm:"column:total_cents;not null" json:"total_cents"`
	CouponCode         *string               `gorm:"column:coupon_code" json:"coupon_code,omitempty"`
	Currency           string                `gorm:"column:currency;type:text;not null" json:"currency"`
	PaymentMode        enums.PaymentMode     `gorm:"column:payment_mode;type:text;not null" json:"payment_mode"`
	PaymentStatus      enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null" json:"payment_status"`
	Status             enums.OrderStatus     `gorm:"column:status;type:text;not null;index" json:"status"`
	DeliveryOTP        *string               `gorm:"column:delivery_otp" json:"-"`
	OTPGeneratedAt     *time.Time            `gorm:"column:otp_generated_at" json:"-"`
	CancellationReason *string               `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy        *uuid.UUID            `gorm:"column:cancelled_by;type:uuid" json:"cancelled_by,omitempty"`
	PlacedAt           time.Time             `gorm:"column:placed_at;not null" json:"placed_at"`
	ConfirmedAt        *time.Time            `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	PickedAt           *time.Time            `gorm:"column:picked_at" json:"picked_at,omitempty"`
	PackedAt           *time.Time            `gorm:"column:packed_at" json:"packed_at,omitempty"`
	OutForDeliveryAt   *time.Time            `gorm:"column:out_for_delivery_at" json:"out_for_delivery_at,omitempty"`
	DeliveredAt        *time.Time            `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CancelledAt        *time.Time            `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	ReturnedAt         *time.Time            `gorm:"column:returned_at" json:"returned_at,omitempty"`
	Items              []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return o.ValidateTotals()
}

// ExpectedTotal is subtotal + delivery fee + tax - discount.
func (o *Order) ExpectedTotal() int {
	return o.SubtotalCents + o.DeliveryFeeCents + o.TaxCents - o.DiscountCents
}

// ValidateTotals enforces the money invariant stored on every order row.
func (o *Order) ValidateTotals() error {
	if o.DiscountCents < 0 || o.DiscountCents > o.SubtotalCents {
		return fmt.Errorf("order %s: discount %d outside [0, %d]", o.OrderNumber, o.DiscountCents, o.SubtotalCents)
	}
	if o.TotalCents != o.ExpectedTotal() {
		return fmt.Errorf("order %s: total %d does not match components %d", o.OrderNumber, o.TotalCents, o.ExpectedTotal())
	}
	return nil
}
