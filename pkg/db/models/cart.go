package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is the single server-owned cart of a buyer.
type Cart struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID       uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex" json:"buyer_id"`
	VendorID      *uuid.UUID `gorm:"column:vendor_id;type:uuid" json:"vendor_id,omitempty"`
	CouponCode    *string    `gorm:"column:coupon_code" json:"coupon_code,omitempty"`
	DiscountCents int        `gorm:"column:discount_cents;not null;default:0" json:"discount_cents"`
	Items         []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

type CartItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CartID     uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index" json:"cart_id"`
	SellUnitID uuid.UUID `gorm:"column:sell_unit_id;type:uuid;not null" json:"sell_unit_id"`
	Quantity   int       `gorm:"column:quantity;not null" json:"quantity"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (i *CartItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}
