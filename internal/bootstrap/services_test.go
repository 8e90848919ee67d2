package bootstrap

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow/pkg/config"
	"github.com/angelmondragon/orderflow/pkg/db"
	"github.com/angelmondragon/orderflow/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow/pkg/redis"
)

var _ txRunner = (*db.Client)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Redis:    config.RedisConfig{IdempotencyTTL: time.Hour},
		Pricing:  config.PricingConfig{Currency: "INR", FreeDeliveryThresholdCents: 50000, DeliveryFeeCents: 4000},
		Delivery: config.DeliveryConfig{OTPLength: 6, MaxAttempts: 5, AttemptWindow: time.Hour},
		Gateway: config.GatewayConfig{
			BaseURL:           "https://gateway.test/v1",
			KeyID:             "rzp_test_key",
			KeySecret:         "secret",
			WebhookSecret:     "whsec",
			Timeout:           time.Second,
			MaxVerifyAttempts: 5,
		},
		Orders: config.OrdersConfig{UnpaidTTL: 30 * time.Minute},
		Cron:   config.CronConfig{BatchSize: 50},
	}
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	raw := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.NewWithCmdable(raw)
}

func TestBuildWiresEveryService(t *testing.T) {
	client, conn := dbtest.Client(t)
	svcs, err := Build(Params{
		Config:   testConfig(),
		DB:       conn,
		Tx:       client,
		Redis:    testRedis(t),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NotNil(t, svcs.Orders)
	require.NotNil(t, svcs.Cart)
	require.NotNil(t, svcs.Returns)
	require.NotNil(t, svcs.Reconciler)
	require.NotNil(t, svcs.Inventory)
	require.NotNil(t, svcs.Catalog)
	require.NotNil(t, svcs.Metrics)
}

func TestBuildRejectsMissingGatewayCredentials(t *testing.T) {
	client, conn := dbtest.Client(t)
	cfg := testConfig()
	cfg.Gateway.KeySecret = ""
	_, err := Build(Params{Config: cfg, DB: conn, Tx: client, Redis: testRedis(t)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "gateway client")
}

func TestBuildRequiresRedis(t *testing.T) {
	client, conn := dbtest.Client(t)
	_, err := Build(Params{Config: testConfig(), DB: conn, Tx: client})
	require.Error(t, err)
}
