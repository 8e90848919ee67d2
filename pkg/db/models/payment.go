package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

// Payment is one gateway payment attempt for an order.
type Payment struct {
	ID                   uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID              uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	GatewayOrderID       string                     `gorm:"column:gateway_order_id;not null;index" json:"gateway_order_id"`
	GatewayPaymentID     *string                    `gorm:"column:gateway_payment_id" json:"gateway_payment_id,omitempty"`
	AmountCents          int                        `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency             string                     `gorm:"column:currency;type:text;not null" json:"currency"`
	Status               enums.GatewayPaymentStatus `gorm:"column:status;type:text;not null" json:"status"`
	RefundedCents        int                        `gorm:"column:refunded_cents;not null;default:0" json:"refunded_cents"`
	FailureReason        *string                    `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	DuplicateOf          *uuid.UUID                 `gorm:"column:duplicate_of;type:uuid" json:"duplicate_of,omitempty"`
	VerificationAttempts int                        `gorm:"column:verification_attempts;not null;default:0" json:"-"`
	CapturedAt           *time.Time                 `gorm:"column:captured_at" json:"captured_at,omitempty"`
	FailedAt             *time.Time                 `gorm:"column:failed_at" json:"failed_at,omitempty"`
	CreatedAt            time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// RefundableCents is what is left to refund on a settled payment.
func (p *Payment) RefundableCents() int {
	if !p.Status.Settled() {
		return 0
	}
	return p.AmountCents - p.RefundedCents
}

// Refund moves money back to the buyer against a settled payment.
type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentID       *uuid.UUID         `gorm:"column:payment_id;type:uuid;index" json:"payment_id,omitempty"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ReturnRequestID *uuid.UUID         `gorm:"column:return_request_id;type:uuid" json:"return_request_id,omitempty"`
	AmountCents     int                `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Reason          string             `gorm:"column:reason;not null" json:"reason"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null" json:"status"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id" json:"gateway_refund_id,omitempty"`
	InitiatedBy     *uuid.UUID         `gorm:"column:initiated_by;type:uuid" json:"initiated_by,omitempty"`
	Attempts        int                `gorm:"column:attempts;not null;default:0" json:"-"`
	LastError       *string            `gorm:"column:last_error" json:"-"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}
