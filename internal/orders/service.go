package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/address"
	"github.com/angelmondragon/orderflow/internal/catalog"
	"github.com/angelmondragon/orderflow/internal/coupons"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
	"github.com/angelmondragon/orderflow/pkg/logger"
	"github.com/angelmondragon/orderflow/pkg/metrics"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

const orderNumberAttempts = 5

// Service owns the order lifecycle.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	AdvanceStatus(ctx context.Context, input AdvanceInput) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, input DeliveryInput) (*models.Order, error)
	CancelOrder(ctx context.Context, input CancelInput) (*CancelResult, error)
	ResendOTP(ctx context.Context, orderID uuid.UUID, actor Actor) error
	DeliveryOTP(ctx context.Context, orderID uuid.UUID, actor Actor) (string, error)
	MarkReturnedTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor Actor) (bool, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, number string, actor Actor) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error)
	ConfirmPaidOrders(ctx context.Context, limit int) (int, error)
}

// ServiceParams wires the order service. Refunds may be nil for deployments
// without a payment gateway; cancelling a paid order then fails.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Confirmer *Confirmer
	Catalog   catalog.Repository
	Addresses address.Service
	Inventory inventoryLedger
	Coupons   coupons.Service
	Ledger    ledger.Service
	Outbox    outboxPublisher
	OTP       otpGenerator
	Attempts  attemptLimiter
	Refunds   RefundQueuer
	Pricing   config.PricingConfig
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	confirmer *Confirmer
	catalog   catalog.Repository
	addresses address.Service
	inventory inventoryLedger
	coupons   coupons.Service
	ledger    ledger.Service
	outbox    outboxPublisher
	otp       otpGenerator
	attempts  attemptLimiter
	refunds   RefundQueuer
	pricing   config.PricingConfig
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Confirmer == nil:
		return nil, fmt.Errorf("confirmer required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case p.Addresses == nil:
		return nil, fmt.Errorf("address service required")
	case p.Inventory == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case p.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.OTP == nil:
		return nil, fmt.Errorf("otp generator required")
	case p.Attempts == nil:
		return nil, fmt.Errorf("otp attempt limiter required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if strings.TrimSpace(p.Pricing.Currency) == "" {
		p.Pricing.Currency = "INR"
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		confirmer: p.Confirmer,
		catalog:   p.Catalog,
		addresses: p.Addresses,
		inventory: p.Inventory,
		coupons:   p.Coupons,
		ledger:    p.Ledger,
		outbox:    p.Outbox,
		otp:       p.OTP,
		attempts:  p.Attempts,
		refunds:   p.Refunds,
		pricing:   p.Pricing,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	lines, err := normalizeLines(input)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ids := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.SellUnitID)
		}
		units, err := s.catalog.WithTx(tx).FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		vendorID := units[lines[0].SellUnitID].VendorID
		for _, line := range lines {
			if units[line.SellUnitID].VendorID != vendorID {
				return pkgerrors.New(pkgerrors.CodeValidation, "an order can only contain items from one vendor").
					WithDetails(map[string]any{"redirect": "cart"})
			}
		}

		snapshot, err := s.addresses.Snapshot(ctx, tx, input.BuyerID, input.AddressID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		order := &models.Order{
			ID:              uuid.New(),
			BuyerID:         input.BuyerID,
			VendorID:        vendorID,
			DeliveryAddress: snapshot,
			Currency:        s.pricing.Currency,
			PaymentMode:     input.PaymentMode,
			PaymentStatus:   enums.PaymentStatusPending,
			Status:          enums.OrderStatusPlaced,
			PlacedAt:        now,
		}

		// lines are sorted by sell unit so concurrent checkouts lock rows in the same order.
		for _, line := range lines {
			unit := units[line.SellUnitID]
			reservation, err := s.inventory.Reserve(ctx, tx, unit.ID, line.Quantity, &order.ID)
			if err != nil {
				return nameStockError(err, unit)
			}
			lineTotal := unit.PriceCents * line.Quantity
			order.SubtotalCents += lineTotal
			reservationID := reservation.ID
			order.Items = append(order.Items, models.OrderItem{
				SellUnitID:        unit.ID,
				ProductID:         unit.ProductID,
				ProductName:       unit.ProductName,
				SellUnitLabel:     unit.Label,
				Quantity:          line.Quantity,
				PricePerUnitCents: unit.PriceCents,
				TotalPriceCents:   lineTotal,
				StockQuantityUsed: line.Quantity,
				ReservationID:     &reservationID,
				ReturnEligible:    unit.ReturnEligible,
				ReturnWindowDays:  unit.ReturnWindowDays,
			})
		}

		if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
			discount, err := s.coupons.Evaluate(ctx, tx, coupons.CartSummary{VendorID: vendorID, SubtotalCents: order.SubtotalCents}, *input.CouponCode)
			if err != nil {
				return err
			}
			if err := s.coupons.Redeem(ctx, tx, discount.CouponID); err != nil {
				return err
			}
			code := discount.Code
			order.CouponCode = &code
			order.DiscountCents = discount.AmountCents
		}

		order.DeliveryFeeCents = s.pricing.DeliveryFeeFor(order.SubtotalCents)
		order.TaxCents = s.pricing.FlatTaxCents
		order.TotalCents = order.ExpectedTotal()

		number, err := s.nextOrderNumber(ctx, repo)
		if err != nil {
			return err
		}
		order.OrderNumber = number

		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         Actor{UserID: input.BuyerID, Role: enums.ActorRoleBuyer}.ref(),
			OccurredAt:    now,
			Data: payloads.OrderPlacedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				VendorID:    order.VendorID,
				TotalCents:  order.TotalCents,
				Currency:    order.Currency,
				PaymentMode: order.PaymentMode,
				ItemCount:   len(order.Items),
			},
		}); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(enums.OrderStatusPlaced))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     created.ID.String(),
		"order_number": created.OrderNumber,
		"total_cents":  created.TotalCents,
		"payment_mode": created.PaymentMode,
	})
	s.logg.Info(logCtx, "order placed")
	return created, nil
}

// normalizeLines validates the input and merges repeated sell units.
func normalizeLines(input CreateOrderInput) ([]CartLine, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if !input.PaymentMode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment mode must be online or cod")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
			WithDetails(map[string]any{"redirect": "cart"})
	}

	merged := make(map[uuid.UUID]int, len(input.Lines))
	for _, line := range input.Lines {
		if line.SellUnitID == uuid.Nil || line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every cart line needs a sell unit and a positive quantity")
		}
		merged[line.SellUnitID] += line.Quantity
	}
	lines := make([]CartLine, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, CartLine{SellUnitID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].SellUnitID.String() < lines[j].SellUnitID.String()
	})
	return lines, nil
}

func nameStockError(err error, unit models.SellUnit) error {
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		return err
	}
	details := map[string]any{
		"sell_unit_id": unit.ID.String(),
		"product_name": unit.ProductName,
		"label":        unit.Label,
	}
	if src, ok := pkgerrors.As(err).Details().(map[string]any); ok {
		for k, v := range src {
			if _, exists := details[k]; !exists {
				details[k] = v
			}
		}
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("%s (%s) does not have enough stock", unit.ProductName, unit.Label)).
		WithDetails(details)
}

func (s *service) nextOrderNumber(ctx context.Context, repo Repository) (string, error) {
	for i := 0; i < orderNumberAttempts; i++ {
		number, err := NewOrderNumber()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		exists, err := repo.OrderNumberExists(ctx, number)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check order number")
		}
		if !exists {
			return number, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique order number")
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetByOrderNumber(ctx context.Context, number string, actor Actor) (*models.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.FindByOrderNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	return s.repo.ListByBuyer(ctx, buyerID, params, filters)
}

func (s *service) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	return s.repo.ListByVendor(ctx, vendorID, params, filters)
}

// authorizeView hides orders the actor has no relationship with.
func authorizeView(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem, enums.ActorRoleAgent:
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID == actor.UserID {
			return nil
		}
	case enums.ActorRoleVendor:
		if actor.VendorID != nil && *actor.VendorID == order.VendorID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func requireRole(actor Actor, roles ...enums.ActorRole) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role not allowed for this action")
}
