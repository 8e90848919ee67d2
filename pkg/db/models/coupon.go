package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Coupon is a discount code. Vendor-scoped coupons only apply to that vendor's carts.
type Coupon struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code             string             `gorm:"column:code;not null;uniqueIndex" json:"code"`
	DiscountType     enums.DiscountType `gorm:"column:discount_type;type:text;not null" json:"discount_type"`
	DiscountValue    int                `gorm:"column:discount_value;not null" json:"discount_value"`
	MaxDiscountCents *int               `gorm:"column:max_discount_cents" json:"max_discount_cents,omitempty"`
	MinOrderCents    int                `gorm:"column:min_order_cents;not null;default:0" json:"min_order_cents"`
	VendorID         *uuid.UUID         `gorm:"column:vendor_id;type:uuid" json:"vendor_id,omitempty"`
	ValidFrom        time.Time          `gorm:"column:valid_from;not null" json:"valid_from"`
	ValidUntil       time.Time          `gorm:"column:valid_until;not null" json:"valid_until"`
	Active           bool               `gorm:"column:active;not null;default:true" json:"active"`
	MaxRedemptions   *int               `gorm:"column:max_redemptions" json:"max_redemptions,omitempty"`
	RedemptionCount  int                `gorm:"column:redemption_count;not null;default:0" json:"redemption_count"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}
