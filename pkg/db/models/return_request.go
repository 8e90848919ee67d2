package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// ReturnRequest is a buyer's request to return one delivered order item.
type ReturnRequest struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	OrderItemID       uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null;index" json:"order_item_id"`
	BuyerID           uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	VendorID          uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	Reason            enums.ReturnReason `gorm:"column:reason;type:text;not null" json:"reason"`
	Description       *string            `gorm:"column:description" json:"description,omitempty"`
	Images            []string           `gorm:"column:images;type:jsonb;serializer:json" json:"images"`
	Status            enums.ReturnStatus `gorm:"column:status;type:text;not null" json:"status"`
	RefundAmountCents int                `gorm:"column:refund_amount_cents;not null;default:0" json:"refund_amount_cents"`
	VendorNotes       *string            `gorm:"column:vendor_notes" json:"vendor_notes,omitempty"`
	AdminNotes        *string            `gorm:"column:admin_notes" json:"admin_notes,omitempty"`
	VendorDecidedBy   *uuid.UUID         `gorm:"column:vendor_decided_by;type:uuid" json:"vendor_decided_by,omitempty"`
	VendorDecidedAt   *time.Time         `gorm:"column:vendor_decided_at" json:"vendor_decided_at,omitempty"`
	AdminDecidedBy    *uuid.UUID         `gorm:"column:admin_decided_by;type:uuid" json:"admin_decided_by,omitempty"`
	AdminDecidedAt    *time.Time         `gorm:"column:admin_decided_at" json:"admin_decided_at,omitempty"`
	RefundID          *uuid.UUID         `gorm:"column:refund_id;type:uuid" json:"refund_id,omitempty"`
	Restock           bool               `gorm:"column:restock;not null;default:false" json:"restock"`
	ResolvedAt        *time.Time         `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (r *ReturnRequest) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}
