package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// LedgerEvent records an immutable money movement tied to an order.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	BuyerID     uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null"`
	VendorID    uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	ActorID     *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Type        enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	AmountCents int                   `gorm:"column:amount_cents;not null"`
	Reference   *string               `gorm:"column:reference"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}
