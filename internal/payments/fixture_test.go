package payments

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
	"github.com/angelmondragon/orderflow/pkg/gateway"
	"github.com/angelmondragon/orderflow/pkg/outbox"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "hook_secret"
)

type fakeGateway struct {
	mu           sync.Mutex
	created      int
	payments     map[string]gateway.PaymentInfo
	fetchErr     error
	refundErr    error
	refundStatus string
	refundCalls  []int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]gateway.PaymentInfo{}, refundStatus: "processed"}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountCents int, currency, receipt string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created++
	return &gateway.Order{ID: "order_gw_" + strconv.Itoa(g.created), AmountCents: amountCents, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, id string) (*gateway.PaymentInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	info, ok := g.payments[id]
	if !ok {
		return nil, &gateway.APIError{StatusCode: 404, Code: "BAD_REQUEST_ERROR", Description: "payment not found"}
	}
	return &info, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentID string, amountCents int, key string) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refundCalls = append(g.refundCalls, amountCents)
	return &gateway.RefundResult{ID: "rfnd_" + strconv.Itoa(len(g.refundCalls)), PaymentID: paymentID, AmountCents: amountCents, Status: g.refundStatus}, nil
}

func (g *fakeGateway) settle(paymentID, gatewayOrderID string, amount int, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[paymentID] = gateway.PaymentInfo{ID: paymentID, OrderID: gatewayOrderID, AmountCents: amount, Status: status, ErrorReason: "card declined"}
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memGuard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[id] {
		return true, nil
	}
	g.seen[id] = true
	return false, nil
}

func (g *memGuard) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, id)
	return nil
}

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

type fixture struct {
	t          *testing.T
	conn       *gorm.DB
	reconciler *Reconciler
	orders     orders.Service
	gw         *fakeGateway
	signer     *gateway.Signer
	guard      *memGuard
	stock      *inventory.Ledger
	now        time.Time
	buyerID    uuid.UUID
	vendorID   uuid.UUID
	addressID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	stock, err := inventory.NewLedger(conn, client, nil)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	confirmer, err := orders.NewConfirmer(orderRepo, stock, publisher, nil, clock)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)

	gw := newFakeGateway()
	signer := gateway.NewSigner(testKeySecret, testWebhookSecret)
	guard := &memGuard{seen: map[string]bool{}}
	reconciler, err := NewReconciler(Params{
		Repo:        NewRepository(conn),
		Orders:      orderRepo,
		Tx:          client,
		Gateway:     gw,
		Signer:      signer,
		Confirmer:   confirmer,
		Ledger:      ledgerSvc,
		Outbox:      publisher,
		Guard:       guard,
		Timeout:     time.Second,
		MaxAttempts: 3,
		Now:         clock,
	})
	require.NoError(t, err)

	addrSvc, err := address.NewService(conn)
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn), clock)
	require.NoError(t, err)
	limiter, err := delivery.NewAttemptLimiter(&memCounter{values: map[string]int64{}}, 3, time.Hour)
	require.NoError(t, err)
	otp, err := delivery.NewGenerator(6)
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
		OTP:       otp,
		Attempts:  limiter,
		Refunds:   reconciler,
		Pricing: config.PricingConfig{
			Currency:                   "INR",
			FreeDeliveryThresholdCents: 50000,
			DeliveryFeeCents:           4000,
		},
		Now: clock,
	})
	require.NoError(t, err)

	f := &fixture{
		t:          t,
		conn:       conn,
		reconciler: reconciler,
		orders:     orderSvc,
		gw:         gw,
		signer:     signer,
		guard:      guard,
		stock:      stock,
		now:        now,
		buyerID:    uuid.New(),
		vendorID:   uuid.New(),
	}
	addr := models.Address{
		ID:         uuid.New(),
		UserID:     f.buyerID,
		Name:       "Ravi",
		Phone:      "+919811111111",
		Line1:      "4 Park Street",
		City:       "Kolkata",
		State:      "WB",
		PostalCode: "700016",
		Country:    "IN",
	}
	require.NoError(t, conn.Create(&addr).Error)
	f.addressID = addr.ID
	return f
}

// placeOnline places a 3 x 15000 online order (total 49000 with delivery).
func (f *fixture) placeOnline() (*models.Order, uuid.UUID) {
	f.t.Helper()
	unit := models.SellUnit{
		ID:          uuid.New(),
		ProductID:   uuid.New(),
		VendorID:    f.vendorID,
		ProductName: "Darjeeling Tea",
		Label:       "500g",
		PriceCents:  15000,
		Active:      true,
	}
	require.NoError(f.t, f.conn.Create(&unit).Error)
	require.NoError(f.t, f.conn.Create(&models.InventoryRecord{SellUnitID: unit.ID, AvailableQty: 10}).Error)

	order, err := f.orders.CreateOrder(context.Background(), orders.CreateOrderInput{
		BuyerID:     f.buyerID,
		AddressID:   f.addressID,
		PaymentMode: enums.PaymentModeOnline,
		Lines:       []orders.CartLine{{SellUnitID: unit.ID, Quantity: 3}},
	})
	require.NoError(f.t, err)
	return order, unit.ID
}

// pay runs checkout and a signed callback for paymentID with the given gateway status.
func (f *fixture) pay(order *models.Order, paymentID, status string) (*VerifyResult, error) {
	f.t.Helper()
	payment, err := f.reconciler.CreateGatewayOrder(context.Background(), order.ID, f.buyerID)
	require.NoError(f.t, err)
	f.gw.settle(paymentID, payment.GatewayOrderID, payment.AmountCents, status)
	return f.reconciler.VerifyCallback(context.Background(), CallbackInput{
		GatewayOrderID:   payment.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        f.signer.SignPayment(payment.GatewayOrderID, paymentID),
		BuyerID:          &f.buyerID,
	})
}

func (f *fixture) order(id uuid.UUID) *models.Order {
	f.t.Helper()
	order, err := orders.NewRepository(f.conn).FindByID(context.Background(), id)
	require.NoError(f.t, err)
	return order
}

func (f *fixture) ledgerCount(orderID uuid.UUID, eventType enums.LedgerEventType) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.conn.Model(&models.LedgerEvent{}).Where("order_id = ? AND type = ?", orderID, eventType).Count(&n).Error)
	return n
}
