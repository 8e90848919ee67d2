package returns

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow/internal/address"
	"github.com/angelmondragon/orderflow/internal/catalog"
	"github.com/angelmondragon/orderflow/internal/coupons"
	"github.com/angelmondragon/orderflow/internal/delivery"
	"github.com/angelmondragon/orderflow/internal/inventory"
	"github.com/angelmondragon/orderflow/internal/ledger"
	"github.com/angelmondragon/orderflow/internal/orders"
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

const deliveryCode = "604118"

type fixedOTP struct{}

func (fixedOTP) Generate() (string, error) { return deliveryCode, nil }

type memCounter struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memCounter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key]++
	return m.values[key], nil
}

func (m *memCounter) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return strconv.FormatInt(v, 10), nil
}

func (m *memCounter) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memCounter) CounterKey(parts ...string) string { return strings.Join(parts, ":") }

type queuedRefund struct {
	orderID  uuid.UUID
	returnID uuid.UUID
	amount   int
}

type fakeRefunds struct {
	queued    []queuedRefund
	processed []uuid.UUID
}

func (f *fakeRefunds) QueueOrderRefundTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, initiatedBy *uuid.UUID) ([]models.Refund, error) {
	return nil, nil
}

func (f *fakeRefunds) QueueReturnRefundTx(ctx context.Context, tx *gorm.DB, orderID, returnID uuid.UUID, amountCents int, reason string, initiatedBy *uuid.UUID) (*models.Refund, error) {
	f.queued = append(f.queued, queuedRefund{orderID: orderID, returnID: returnID, amount: amountCents})
	return &models.Refund{ID: uuid.New(), OrderID: orderID, ReturnRequestID: &returnID, AmountCents: amountCents, Status: enums.RefundStatusPending}, nil
}

func (f *fakeRefunds) ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	f.processed = append(f.processed, refundID)
	return &models.Refund{ID: refundID, Status: enums.RefundStatusProcessed}, nil
}

type fixture struct {
	t         *testing.T
	svc       Service
	orders    orders.Service
	conn      *gorm.DB
	stock     *inventory.Ledger
	refunds   *fakeRefunds
	now       time.Time
	buyerID   uuid.UUID
	vendorID  uuid.UUID
	adminID   uuid.UUID
	addressID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	f := &fixture{
		t:        t,
		conn:     conn,
		refunds:  &fakeRefunds{},
		now:      time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		buyerID:  uuid.New(),
		vendorID: uuid.New(),
		adminID:  uuid.New(),
	}
	clock := func() time.Time { return f.now }

	stock, err := inventory.NewLedger(conn, client, nil)
	require.NoError(t, err)
	f.stock = stock
	orderRepo := orders.NewRepository(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	confirmer, err := orders.NewConfirmer(orderRepo, stock, publisher, nil, clock)
	require.NoError(t, err)
	addrSvc, err := address.NewService(conn)
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn), clock)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	limiter, err := delivery.NewAttemptLimiter(&memCounter{values: map[string]int64{}}, 3, time.Hour)
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        client,
		Confirmer: confirmer,
		Catalog:   catalog.NewRepository(conn),
		Addresses: addrSvc,
		Inventory: stock,
		Coupons:   couponSvc,
		Ledger:    ledgerSvc,
		Outbox:    publisher,
		OTP:       fixedOTP{},
		Attempts:  limiter,
		Refunds:   f.refunds,
		Pricing: config.PricingConfig{
			Currency:                   "INR",
			FreeDeliveryThresholdCents: 50000,
			DeliveryFeeCents:           4000,
		},
		Now: clock,
	})
	require.NoError(t, err)
	f.orders = orderSvc

	svc, err := NewService(Params{
		Repo:      NewRepository(conn),
		Orders:    orderRepo,
		Marker:    orderSvc,
		Tx:        client,
		Refunds:   f.refunds,
		Inventory: stock,
		Ledger:    ledgerSvc,
		Outbox:    publisher,
		Now:       clock,
	})
	require.NoError(t, err)
	f.svc = svc

	addr := models.Address{
		ID:         uuid.New(),
		UserID:     f.buyerID,
		Name:       "Meera",
		Phone:      "+919822222222",
		Line1:      "9 Residency Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560025",
		Country:    "IN",
	}
	require.NoError(t, conn.Create(&addr).Error)
	f.addressID = addr.ID
	return f
}

func (f *fixture) sellUnit(name string, priceCents, stockQty, returnDays int) uuid.UUID {
	f.t.Helper()
	unit := models.SellUnit{
		ID:               uuid.New(),
		ProductID:        uuid.New(),
		VendorID:         f.vendorID,
		ProductName:      name,
		Label:            "1 pc",
		PriceCents:       priceCents,
		ReturnEligible:   returnDays > 0,
		ReturnWindowDays: returnDays,
		Active:           true,
	}
	require.NoError(f.t, f.conn.Create(&unit).Error)
	require.NoError(f.t, f.conn.Create(&models.InventoryRecord{SellUnitID: unit.ID, AvailableQty: stockQty}).Error)
	return unit.ID
}

func (f *fixture) buyer() orders.Actor {
	return orders.Actor{UserID: f.buyerID, Role: enums.ActorRoleBuyer}
}

func (f *fixture) vendor() orders.Actor {
	vendorID := f.vendorID
	return orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleVendor, VendorID: &vendorID}
}

// deliver places an order and walks it to delivered at the current clock.
// Online orders are marked paid directly so confirmation succeeds.
func (f *fixture) deliver(mode enums.PaymentMode, lines ...orders.CartLine) *models.Order {
	f.t.Helper()
	ctx := context.Background()
	order, err := f.orders.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID:     f.buyerID,
		AddressID:   f.addressID,
		PaymentMode: mode,
		Lines:       lines,
	})
	require.NoError(f.t, err)
	if mode == enums.PaymentModeOnline {
		require.NoError(f.t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("payment_status", enums.PaymentStatusPaid).Error)
	}

	current, err := f.orders.ConfirmOrder(ctx, order.ID, f.vendor())
	require.NoError(f.t, err)
	for current.Status != enums.OrderStatusOutForDelivery {
		next, ok := orders.NextStatus(current.Status)
		require.True(f.t, ok)
		current, err = f.orders.AdvanceStatus(ctx, orders.AdvanceInput{OrderID: order.ID, Target: next, Actor: f.vendor()})
		require.NoError(f.t, err)
	}
	agent := orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleAgent}
	delivered, err := f.orders.ConfirmDelivery(ctx, orders.DeliveryInput{OrderID: order.ID, OTP: deliveryCode, Actor: agent})
	require.NoError(f.t, err)
	require.Equal(f.t, enums.OrderStatusDelivered, delivered.Status)
	return f.reload(order.ID)
}

func (f *fixture) reload(orderID uuid.UUID) *models.Order {
	f.t.Helper()
	order, err := orders.NewRepository(f.conn).FindByID(context.Background(), orderID)
	require.NoError(f.t, err)
	return order
}

func (f *fixture) available(unitID uuid.UUID) int {
	f.t.Helper()
	rec, err := f.stock.Get(context.Background(), unitID)
	require.NoError(f.t, err)
	return rec.AvailableQty
}

func (f *fixture) request(order *models.Order, item models.OrderItem) (*models.ReturnRequest, error) {
	return f.svc.CreateReturn(context.Background(), CreateInput{
		BuyerID:     f.buyerID,
		OrderID:     order.ID,
		OrderItemID: item.ID,
		Reason:      enums.ReturnReasonDamaged,
		Images:      []string{"https://cdn.example.com/r/1.jpg"},
	})
}

func (f *fixture) approveAsVendor(req *models.ReturnRequest, amount *int) (*models.ReturnRequest, error) {
	return f.svc.VendorDecision(context.Background(), VendorDecisionInput{
		ReturnID:          req.ID,
		VendorID:          f.vendorID,
		DecidedBy:         uuid.New(),
		Approve:           true,
		RefundAmountCents: amount,
	})
}
