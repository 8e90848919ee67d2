package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// OrderItem snapshots catalog data and the locked unit price at placement.
type OrderItem struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	SellUnitID        uuid.UUID              `gorm:"column:sell_unit_id;type:uuid;not null" json:"sell_unit_id"`
	ProductID         uuid.UUID              `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	ProductName       string                 `gorm:"column:product_name;not null" json:"product_name"`
	SellUnitLabel     string                 `gorm:"column:sell_unit_label;not null" json:"sell_unit_label"`
	Quantity          int                    `gorm:"column:quantity;not null" json:"quantity"`
	PricePerUnitCents int                    `gorm:"column:price_per_unit_cents;not null" json:"price_per_unit_cents"`
	TotalPriceCents   int                    `gorm:"column:total_price_cents;not null" json:"total_price_cents"`
	StockQuantityUsed int                    `gorm:"column:stock_quantity_used;not null" json:"stock_quantity_used"`
	ReservationID     *uuid.UUID             `gorm:"column:reservation_id;type:uuid" json:"-"`
	ReturnEligible    bool                   `gorm:"column:return_eligible;not null;default:false" json:"return_eligible"`
	ReturnWindowDays  int                    `gorm:"column:return_window_days;not null;default:0" json:"return_window_days"`
	ReturnDeadline    *time.Time             `gorm:"column:return_deadline" json:"return_deadline,omitempty"`
	ReturnStatus      enums.ItemReturnStatus `gorm:"column:return_status;type:text;not null;default:'none'" json:"return_status"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	if i.ReturnStatus == "" {
		i.ReturnStatus = enums.ItemReturnStatusNone
	}
	return nil
}
