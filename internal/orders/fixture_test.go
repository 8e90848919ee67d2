package orders

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
	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow/pkg/db/models"
	"github.com/angelmondragon/orderflow/pkg/enums"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

type fixedOTP struct{ code string }

func (f fixedOTP) Generate() (string, error) { return f.code, nil }

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

type fakeRefunds struct {
	queued    []uuid.UUID
	processed []uuid.UUID
}

func (f *fakeRefunds) QueueOrderRefundTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, initiatedBy *uuid.UUID) ([]models.Refund, error) {
	f.queued = append(f.queued, orderID)
	return []models.Refund{{ID: uuid.New(), OrderID: orderID, Reason: reason, Status: enums.RefundStatusPending}}, nil
}

func (f *fakeRefunds) ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	f.processed = append(f.processed, refundID)
	return &models.Refund{ID: refundID, Status: enums.RefundStatusProcessed}, nil
}

type fixture struct {
	t         *testing.T
	svc       Service
	confirmer *Confirmer
	conn      *gorm.DB
	stock     *inventory.Ledger
	refunds   *fakeRefunds
	now       time.Time
	buyerID   uuid.UUID
	vendorID  uuid.UUID
	addressID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	stock, err := inventory.NewLedger(conn, client, nil)
	require.NoError(t, err)
	repo := NewRepository(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	confirmer, err := NewConfirmer(repo, stock, publisher, nil, clock)
	require.NoError(t, err)
	addrSvc, err := address.NewService(conn)
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn), clock)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	limiter, err := delivery.NewAttemptLimiter(&memCounter{values: map[string]int64{}}, 3, time.Hour)
	require.NoError(t, err)
	refunds := &fakeRefunds{}

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Tx:        client,
		Confirmer: confirmer,
		Catalog:   catalog.NewRepository(conn),
		Addresses: addrSvc,
		Inventory: stock,
		Coupons:   couponSvc,
		Ledger:    ledgerSvc,
		Outbox:    publisher,
		OTP:       fixedOTP{code: "482913"},
		Attempts:  limiter,
		Refunds:   refunds,
		Pricing: config.PricingConfig{
			Currency:                   "INR",
			FreeDeliveryThresholdCents: 50000,
			DeliveryFeeCents:           4000,
		},
		Now: clock,
	})
	require.NoError(t, err)

	f := &fixture{
		t:         t,
		svc:       svc,
		confirmer: confirmer,
		conn:      conn,
		stock:     stock,
		refunds:   refunds,
		now:       now,
		buyerID:   uuid.New(),
		vendorID:  uuid.New(),
	}
	addr := models.Address{
		ID:         uuid.New(),
		UserID:     f.buyerID,
		Name:       "Asha",
		Phone:      "+919800000000",
		Line1:      "12 MG Road",
		City:       "Pune",
		State:      "MH",
		PostalCode: "411001",
		Country:    "IN",
	}
	require.NoError(t, conn.Create(&addr).Error)
	f.addressID = addr.ID
	return f
}

func (f *fixture) sellUnit(name string, priceCents, stockQty int, returnDays int) uuid.UUID {
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

func (f *fixture) buyer() Actor {
	return Actor{UserID: f.buyerID, Role: enums.ActorRoleBuyer}
}

func (f *fixture) vendor() Actor {
	vendorID := f.vendorID
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleVendor, VendorID: &vendorID}
}

func (f *fixture) agent() Actor {
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleAgent}
}

func (f *fixture) place(mode enums.PaymentMode, lines ...CartLine) *models.Order {
	f.t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID:     f.buyerID,
		AddressID:   f.addressID,
		PaymentMode: mode,
		Lines:       lines,
	})
	require.NoError(f.t, err)
	return order
}

// advanceTo drives a COD order from placed to target through the public operations.
func (f *fixture) advanceTo(order *models.Order, target enums.OrderStatus) *models.Order {
	f.t.Helper()
	ctx := context.Background()
	current := order
	if current.Status == enums.OrderStatusPlaced && target != enums.OrderStatusPlaced {
		var err error
		current, err = f.svc.ConfirmOrder(ctx, order.ID, f.vendor())
		require.NoError(f.t, err)
	}
	for current.Status != target {
		next, ok := NextStatus(current.Status)
		require.True(f.t, ok, "no successor for %s", current.Status)
		var err error
		current, err = f.svc.AdvanceStatus(ctx, AdvanceInput{OrderID: order.ID, Target: next, Actor: f.vendor()})
		require.NoError(f.t, err)
	}
	return current
}

func (f *fixture) record(unitID uuid.UUID) models.InventoryRecord {
	f.t.Helper()
	rec, err := f.stock.Get(context.Background(), unitID)
	require.NoError(f.t, err)
	return *rec
}

func (f *fixture) reload(orderID uuid.UUID) *models.Order {
	f.t.Helper()
	order, err := NewRepository(f.conn).FindByID(context.Background(), orderID)
	require.NoError(f.t, err)
	return order
}

func (f *fixture) outboxTypes(orderID uuid.UUID) []enums.OutboxEventType {
	f.t.Helper()
	rows, err := outbox.NewRepository(f.conn).ListByAggregate(f.conn, orderID)
	require.NoError(f.t, err)
	types := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}
