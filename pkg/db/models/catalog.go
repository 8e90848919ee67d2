package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/types"
)

// SellUnit is the catalog service's purchasable variant. Orders only read it.
type SellUnit struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VendorID         uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	ProductName      string    `gorm:"column:product_name;not null"`
	Label            string    `gorm:"column:label;not null"`
	PriceCents       int       `gorm:"column:price_cents;not null"`
	ReturnEligible   bool      `gorm:"column:return_eligible;not null;default:false"`
	ReturnWindowDays int       `gorm:"column:return_window_days;not null;default:0"`
	Active           bool      `gorm:"column:active;not null;default:true"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Address is a buyer's saved address owned by the address service.
type Address struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Phone      string    `gorm:"column:phone;not null"`
	Line1      string    `gorm:"column:line1;not null"`
	Line2      *string   `gorm:"column:line2"`
	Landmark   *string   `gorm:"column:landmark"`
	City       string    `gorm:"column:city;not null"`
	State      string    `gorm:"column:state;not null"`
	PostalCode string    `gorm:"column:postal_code;not null"`
	Country    string    `gorm:"column:country;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Snapshot copies the address onto an order.
func (a Address) Snapshot() types.AddressSnapshot {
	return types.AddressSnapshot{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		Landmark:   a.Landmark,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
