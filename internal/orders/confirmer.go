package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

// Confirmer performs the placed -> confirmed step. It is separate from Service
// so the payment reconciler can confirm inside its own capture transaction.
type Confirmer struct {
	repo      Repository
	inventory inventoryLedger
	outbox    outboxPublisher
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

func NewConfirmer(repo Repository, inventory inventoryLedger, publisher outboxPublisher, m *metrics.OrderMetrics, now func() time.Time) (*Confirmer, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if now == nil {
		now = time.Now
	}
	return &Confirmer{repo: repo, inventory: inventory, outbox: publisher, metrics: m, now: now}, nil
}

// ConfirmOrderTx confirms a placed order inside tx. Online orders must already
// be paid. The status update is conditional on the order still being placed,
// so concurrent callers consume stock at most once.
func (c *Confirmer) ConfirmOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := c.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPlaced {
		return nil, invalidTransition(order.Status, enums.OrderStatusConfirmed)
	}
	if order.PaymentMode == enums.PaymentModeOnline && order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot be confirmed before payment").
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}

	now := c.now().UTC()
	ok, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPlaced, enums.OrderStatusConfirmed, map[string]any{"confirmed_at": now})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm order")
	}
	if !ok {
		return nil, invalidTransition(order.Status, enums.OrderStatusConfirmed)
	}
	if err := c.inventory.ConsumeOrder(ctx, tx, order.ID); err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = enums.OrderStatusConfirmed
	order.ConfirmedAt = &now
	if err := emitTransition(ctx, c.outbox, tx, order, from, order.Status, "", actor, now); err != nil {
		return nil, err
	}
	c.metrics.Transition(string(order.Status))
	return order, nil
}
