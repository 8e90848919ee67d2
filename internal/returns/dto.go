package returns

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

const (
	maxImages         = 5
	maxDescriptionLen = 1000
	maxNotesLen       = 1000
)

// CreateInput is a buyer's return request for one delivered item.
type CreateInput struct {
	BuyerID     uuid.UUID
	OrderID     uuid.UUID
	OrderItemID uuid.UUID
	Reason      enums.ReturnReason
	Description *string
	Images      []string
}

// VendorDecisionInput is the vendor's first-pass review. RefundAmountCents
// defaults to the item total when nil.
type VendorDecisionInput struct {
	ReturnID          uuid.UUID
	VendorID          uuid.UUID
	DecidedBy         uuid.UUID
	Approve           bool
	RefundAmountCents *int
	Notes             *string
}

// AdminDecisionInput is the final sign-off. RefundAmountCents overrides the
// vendor's proposal when set.
type AdminDecisionInput struct {
	ReturnID          uuid.UUID
	AdminID           uuid.UUID
	Approve           bool
	RefundAmountCents *int
	Restock           bool
	Notes             *string
}
