package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// InventoryRecord tracks available and reserved counts per sell unit.
type InventoryRecord struct {
	SellUnitID   uuid.UUID `gorm:"column:sell_unit_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0;check:available_qty >= 0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0;check:reserved_qty >= 0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// InventoryReservation is a single stock hold. Its ID doubles as the reservation token.
type InventoryReservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SellUnitID uuid.UUID               `gorm:"column:sell_unit_id;type:uuid;not null;index"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	Qty        int                     `gorm:"column:qty;not null"`
	Status     enums.ReservationStatus `gorm:"column:status;type:text;not null"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *InventoryReservation) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}
