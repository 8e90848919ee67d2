package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

// Service records the append-only money events the payout process reads.
type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, eventType enums.LedgerEventType, reference *string) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
// Reference carries the gateway payment or refund id when there is one.
type RecordLedgerEventInput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	BuyerID     uuid.UUID             `json:"buyer_id"`
	VendorID    uuid.UUID             `json:"vendor_id"`
	ActorID     *uuid.UUID            `json:"actor_id,omitempty"`
	Type        enums.LedgerEventType `json:"type"`
	AmountCents int                   `json:"amount_cents"`
	Reference   *string               `json:"reference,omitempty"`
	Metadata    json.RawMessage       `json:"metadata,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, fmt.Errorf("buyer id is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, fmt.Errorf("vendor id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if input.AmountCents < 0 {
		return nil, fmt.Errorf("ledger amount must not be negative")
	}

	event := &models.LedgerEvent{
		OrderID:     input.OrderID,
		BuyerID:     input.BuyerID,
		VendorID:    input.VendorID,
		ActorID:     input.ActorID,
		Type:        input.Type,
		AmountCents: input.AmountCents,
		Reference:   input.Reference,
		Metadata:    input.Metadata,
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record ledger event")
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, eventType enums.LedgerEventType, reference *string) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	return s.repo.WithTx(tx).Exists(ctx, orderID, eventType, reference)
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}
