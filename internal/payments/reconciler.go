package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/gateway"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultAbandonAfter   = 30 * time.Minute
	defaultBatchSize      = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayClient interface {
	CreateOrder(ctx context.Context, amountCents int, currency, receipt string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*gateway.PaymentInfo, error)
	Refund(ctx context.Context, gatewayPaymentID string, amountCents int, idempotencyKey string) (*gateway.RefundResult, error)
}

type signatureVerifier interface {
	VerifyPayment(gatewayOrderID, gatewayPaymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
}

type orderConfirmer interface {
	ConfirmOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Params wires the reconciler. Guard is optional; without it webhook
// redeliveries are still safe because every state change is conditional.
type Params struct {
	Repo         Repository
	Orders       orders.Repository
	Tx           txRunner
	Gateway      gatewayClient
	Signer       signatureVerifier
	Confirmer    orderConfirmer
	Ledger       ledger.Service
	Outbox       outboxPublisher
	Guard        webhookGuard
	Metrics      *metrics.OrderMetrics
	Logger       *logger.Logger
	Timeout      time.Duration
	AbandonAfter time.Duration
	MaxAttempts  int
	BatchSize    int
	Now          func() time.Time
}

// Reconciler keeps payments, refunds and order payment state consistent with the gateway.
type Reconciler struct {
	repo         Repository
	orders       orders.Repository
	tx           txRunner
	gateway      gatewayClient
	signer       signatureVerifier
	confirmer    orderConfirmer
	ledger       ledger.Service
	outbox       outboxPublisher
	guard        webhookGuard
	metrics      *metrics.OrderMetrics
	logg         *logger.Logger
	timeout      time.Duration
	abandonAfter time.Duration
	maxAttempts  int
	batchSize    int
	now          func() time.Time
}

var systemActor = &outbox.ActorRef{Role: string(enums.ActorRoleSystem)}

func NewReconciler(p Params) (*Reconciler, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if p.Signer == nil {
		return nil, fmt.Errorf("signature verifier required")
	}
	if p.Confirmer == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	r := &Reconciler{
		repo:         p.Repo,
		orders:       p.Orders,
		tx:           p.Tx,
		gateway:      p.Gateway,
		signer:       p.Signer,
		confirmer:    p.Confirmer,
		ledger:       p.Ledger,
		outbox:       p.Outbox,
		guard:        p.Guard,
		metrics:      p.Metrics,
		logg:         p.Logger,
		timeout:      p.Timeout,
		abandonAfter: p.AbandonAfter,
		maxAttempts:  p.MaxAttempts,
		batchSize:    p.BatchSize,
		now:          p.Now,
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	if r.timeout <= 0 {
		r.timeout = defaultGatewayTimeout
	}
	if r.abandonAfter <= 0 {
		r.abandonAfter = defaultAbandonAfter
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// CreateGatewayOrder returns the order's open gateway order, creating one when
// none exists. The order row stays locked while deciding so double submits
// cannot create two gateway orders.
func (r *Reconciler) CreateGatewayOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Payment, error) {
	var payment *models.Payment
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := r.orders.WithTx(tx).LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.PaymentMode != enums.PaymentModeOnline {
			return pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery orders are paid at delivery")
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}
		if order.Status != enums.OrderStatusPlaced {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}

		repo := r.repo.WithTx(tx)
		open, err := repo.FindOpenPayment(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open payment")
		}
		if open != nil {
			payment = open
			return nil
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		gwOrder, err := r.gateway.CreateOrder(callCtx, order.TotalCents, order.Currency, order.OrderNumber)
		if err != nil {
			if gateway.IsAmbiguous(err) {
				return pkgerrors.Wrap(pkgerrors.CodeGatewayAmbiguous, err, "payment gateway did not respond; try again")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway order")
		}

		payment = &models.Payment{
			OrderID:        order.ID,
			GatewayOrderID: gwOrder.ID,
			AmountCents:    order.TotalCents,
			Currency:       order.Currency,
			Status:         enums.GatewayPaymentStatusCreated,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := r.logg.WithPaymentID(r.logg.WithOrderID(ctx, orderID.String()), payment.ID.String())
	r.logg.Info(r.logg.WithField(logCtx, "gateway_order_id", payment.GatewayOrderID), "gateway order ready")
	return payment, nil
}

// ListPayments returns every payment recorded for an order.
func (r *Reconciler) ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	return r.repo.ListByOrder(ctx, orderID)
}

func (r *Reconciler) actorFor(buyerID *uuid.UUID) *outbox.ActorRef {
	if buyerID == nil {
		return systemActor
	}
	id := *buyerID
	return &outbox.ActorRef{UserID: &id, Role: string(enums.ActorRoleBuyer)}
}

func paymentFailed(p *models.Payment) error {
	details := map[string]any{"next": "order", "order_id": p.OrderID}
	if p.FailureReason != nil {
		details["reason"] = *p.FailureReason
	}
	return pkgerrors.New(pkgerrors.CodePaymentFailed, "payment failed — contact support if charged").WithDetails(details)
}
