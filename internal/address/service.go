package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/types"
)

// Service resolves a buyer's saved address into the snapshot stored on an order.
type Service interface {
	Snapshot(ctx context.Context, tx *gorm.DB, userID, addressID uuid.UUID) (types.AddressSnapshot, error)
}

type service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

func (s *service) Snapshot(ctx context.Context, tx *gorm.DB, userID, addressID uuid.UUID) (types.AddressSnapshot, error) {
	if addressID == uuid.Nil {
		return types.AddressSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	conn := s.db
	if tx != nil {
		conn = tx
	}

	var addr models.Address
	err := conn.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		Take(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AddressSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if err != nil {
		return types.AddressSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}

	snapshot := addr.Snapshot()
	if err := snapshot.Validate(); err != nil {
		return types.AddressSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "address incomplete")
	}
	return snapshot, nil
}
