// Package bootstrap assembles the order, payment, and return services shared
// by the api and cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/address"
	"github.com/angelmondragon/orderflow/internal/cart"
	"github.com/angelmondragon/orderflow/internal/catalog"
	"github.com/angelmondragon/orderflow/internal/coupons"
	"github.com/angelmondragon/orderflow/internal/delivery"
	"github.com/angelmondragon/orderflow/internal/inventory"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/internal/payments"
	"github.com/angelmondragon/orderflow/internal/returns"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/gateway"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

const webhookGuardScope = "gateway_webhook"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params carries the infrastructure handles every binary already owns.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *gorm.DB
	Tx       txRunner
	Redis    *redis.Client
	Registry prometheus.Registerer
	Now      func() time.Time
}

// Services is the wired domain graph.
type Services struct {
	Orders     orders.Service
	Cart       cart.Service
	Returns    returns.Service
	Reconciler *payments.Reconciler
	Inventory  *inventory.Ledger
	Catalog    catalog.Repository
	Outbox     *outbox.Repository
	Metrics    *metrics.OrderMetrics
}

// Build constructs the service graph. The reconciler is built before the
// order service because order cancellation queues refunds through it.
func Build(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if p.DB == nil || p.Tx == nil {
		return nil, fmt.Errorf("database required")
	}
	if p.Redis == nil {
		return nil, fmt.Errorf("redis required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	cfg := p.Config

	var orderMetrics *metrics.OrderMetrics
	if p.Registry != nil {
		orderMetrics = metrics.NewOrderMetrics(p.Registry)
	}

	outboxRepo := outbox.NewRepository(p.DB)
	publisher := outbox.NewService(outboxRepo, p.Logger)

	stock, err := inventory.NewLedger(p.DB, p.Tx, orderMetrics)
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}
	orderRepo := orders.NewRepository(p.DB)
	confirmer, err := orders.NewConfirmer(orderRepo, stock, publisher, orderMetrics, now)
	if err != nil {
		return nil, fmt.Errorf("order confirmer: %w", err)
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(p.DB))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	gatewayClient, err := gateway.NewClient(cfg.Gateway, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("gateway client: %w", err)
	}
	guard, err := payments.NewIdempotencyGuard(p.Redis, cfg.Redis.IdempotencyTTL, webhookGuardScope)
	if err != nil {
		return nil, fmt.Errorf("webhook guard: %w", err)
	}
	reconciler, err := payments.NewReconciler(payments.Params{
		Repo:         payments.NewRepository(p.DB),
		Orders:       orderRepo,
		Tx:           p.Tx,
		Gateway:      gatewayClient,
		Signer:       gateway.NewSigner(cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret),
		Confirmer:    confirmer,
		Ledger:       ledgerSvc,
		Outbox:       publisher,
		Guard:        guard,
		Metrics:      orderMetrics,
		Logger:       p.Logger,
		Timeout:      cfg.Gateway.Timeout,
		AbandonAfter: cfg.Orders.UnpaidTTL,
		MaxAttempts:  cfg.Gateway.MaxVerifyAttempts,
		BatchSize:    cfg.Cron.BatchSize,
		Now:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("payment reconciler: %w", err)
	}

	addresses, err := address.NewService(p.DB)
	if err != nil {
		return nil, fmt.Errorf("address service: %w", err)
	}
	couponSvc, err := coupons.NewService(coupons.NewRepository(p.DB), now)
	if err != nil {
		return nil, fmt.Errorf("coupon service: %w", err)
	}
	otp, err := delivery.NewGenerator(cfg.Delivery.OTPLength)
	if err != nil {
		return nil, fmt.Errorf("otp generator: %w", err)
	}
	attempts, err := delivery.NewAttemptLimiter(p.Redis, cfg.Delivery.MaxAttempts, cfg.Delivery.AttemptWindow)
	if err != nil {
		return nil, fmt.Errorf("otp attempt limiter: %w", err)
	}
	catalogRepo := catalog.NewRepository(p.DB)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        p.Tx,
		Confirmer: confirmer,
		Catalog:   catalogRepo,
		Addresses: addresses,
		Inventory: stock,
		Coupons:   couponSvc,
		Ledger:    ledgerSvc,
		Outbox:    publisher,
		OTP:       otp,
		Attempts:  attempts,
		Refunds:   reconciler,
		Pricing:   cfg.Pricing,
		Metrics:   orderMetrics,
		Logger:    p.Logger,
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}

	returnSvc, err := returns.NewService(returns.Params{
		Repo:      returns.NewRepository(p.DB),
		Orders:    orderRepo,
		Marker:    orderSvc,
		Tx:        p.Tx,
		Refunds:   reconciler,
		Inventory: stock,
		Ledger:    ledgerSvc,
		Outbox:    publisher,
		Logger:    p.Logger,
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("return service: %w", err)
	}

	cartSvc, err := cart.NewService(cart.Params{
		Repo:    cart.NewRepository(p.DB),
		Tx:      p.Tx,
		Catalog: catalogRepo,
		Coupons: couponSvc,
		Orders:  orderSvc,
		Pricing: cfg.Pricing,
		Logger:  p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	return &Services{
		Orders:     orderSvc,
		Cart:       cartSvc,
		Returns:    returnSvc,
		Reconciler: reconciler,
		Inventory:  stock,
		Catalog:    catalogRepo,
		Outbox:     outboxRepo,
		Metrics:    orderMetrics,
	}, nil
}
