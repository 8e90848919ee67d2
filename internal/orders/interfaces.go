package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/pagination"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockByID loads the order row with FOR UPDATE. Items are loaded without a lock.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, number string) (*models.Order, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	// UpdateStatus applies updates only while the order is still in from and
	// reports whether the row changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	CountInFlightPayments(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListUnpaidBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListPaidAwaitingConfirmation(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type inventoryLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, sellUnitID uuid.UUID, qty int, orderID *uuid.UUID) (*models.InventoryReservation, error)
	ConsumeOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type otpGenerator interface {
	Generate() (string, error)
}

type attemptLimiter interface {
	Attempt(ctx context.Context, orderID uuid.UUID) (int, error)
	Reset(ctx context.Context, orderID uuid.UUID) error
}

// RefundQueuer refunds money captured for an order. QueueOrderRefundTx runs
// inside the cancel transaction; ProcessRefund talks to the gateway after commit.
type RefundQueuer interface {
	QueueOrderRefundTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, initiatedBy *uuid.UUID) ([]models.Refund, error)
	ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
}
