package payments

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/db/models"
)

// CallbackInput is what the buyer's client posts after the gateway checkout completes.
// BuyerID is set from the authenticated caller, never from the body.
type CallbackInput struct {
	GatewayOrderID   string     `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string     `json:"gateway_payment_id" validate:"required"`
	Signature        string     `json:"signature" validate:"required"`
	BuyerID          *uuid.UUID `json:"-"`
}

// VerifyResult reports where a payment ended up after verification.
type VerifyResult struct {
	Payment          *models.Payment `json:"payment"`
	Order            *models.Order   `json:"order"`
	Duplicate        bool            `json:"duplicate"`
	AlreadyProcessed bool            `json:"already_processed"`
}

// RefundInput requests a refund against one settled payment. AmountCents
// defaults to the full payment amount.
type RefundInput struct {
	PaymentID       uuid.UUID  `json:"payment_id" validate:"required"`
	AmountCents     *int       `json:"amount_cents,omitempty" validate:"omitempty,gt=0"`
	Reason          string     `json:"reason" validate:"required,max=500"`
	ReturnRequestID *uuid.UUID `json:"return_request_id,omitempty"`
	InitiatedBy     *uuid.UUID `json:"-"`
}

// DuplicateReport lists the payments holding money for one order.
type DuplicateReport struct {
	OrderID   uuid.UUID        `json:"order_id"`
	Payments  []models.Payment `json:"payments"`
	Duplicate bool             `json:"duplicate"`
	Code      string           `json:"code,omitempty"`
}

// ReconcileReport summarizes one ReconcilePending sweep.
type ReconcileReport struct {
	Verified         int `json:"verified"`
	Ambiguous        int `json:"ambiguous"`
	Failed           int `json:"failed"`
	Abandoned        int `json:"abandoned"`
	RefundsProcessed int `json:"refunds_processed"`
	RefundsPending   int `json:"refunds_pending"`
	RefundsFailed    int `json:"refunds_failed"`
}
