package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/orderflow/pkg/enums"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Delivery     DeliveryConfig
	Gateway      GatewayConfig
	Orders       OrdersConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyLocalMode(); err != nil {
		return nil, err
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Delivery.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string   `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ORDERFLOW_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	TxMaxRetries int           `envconfig:"ORDERFLOW_DB_TX_MAX_RETRIES" default:"3"`
	TxRetryDelay time.Duration `envconfig:"ORDERFLOW_DB_TX_RETRY_DELAY" default:"25ms"`
}

type RedisConfig struct {
	URL            string        `envconfig:"ORDERFLOW_REDIS_URL"`
	Address        string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password       string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB             int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"ORDERFLOW_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// JWTConfig only carries verification settings; tokens are minted by the auth service.
type JWTConfig struct {
	Secret string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

// DefaultSQLiteDSN is the file used by the local sqlite mode when no DSN is set.
const DefaultSQLiteDSN = "file:orderflow.db?_busy_timeout=5000"

// applyLocalMode switches the DB to sqlite when ORDERFLOW_USE_SQLITE is set.
// The flag is refused in production.
func (c *Config) applyLocalMode() error {
	if !c.FeatureFlags.UseSQLite {
		return nil
	}
	if c.App.IsProd() {
		return fmt.Errorf("%s cannot be enabled in production", EnvUseSQLite)
	}
	c.DB.Driver = "sqlite"
	if c.DB.DSN == "" {
		c.DB.DSN = DefaultSQLiteDSN
	}
	return nil
}

type PricingConfig struct {
	Currency                   string `envconfig:"ORDERFLOW_CURRENCY" default:"INR"`
	FreeDeliveryThresholdCents int    `envconfig:"ORDERFLOW_FREE_DELIVERY_THRESHOLD_CENTS" default:"50000"`
	DeliveryFeeCents           int    `envconfig:"ORDERFLOW_DELIVERY_FEE_CENTS" default:"4000"`
	FlatTaxCents               int    `envconfig:"ORDERFLOW_FLAT_TAX_CENTS" default:"0"`
}

func (p *PricingConfig) normalize() error {
	currency, err := enums.ParseCurrency(p.Currency)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCurrency, err)
	}
	p.Currency = currency.String()
	if p.DeliveryFeeCents < 0 || p.FlatTaxCents < 0 {
		return fmt.Errorf("%s must not be negative", EnvDeliveryFee)
	}
	return nil
}

// DeliveryFeeFor returns the delivery fee for a subtotal: free at or above the threshold.
func (p PricingConfig) DeliveryFeeFor(subtotalCents int) int {
	if p.FreeDeliveryThresholdCents > 0 && subtotalCents >= p.FreeDeliveryThresholdCents {
		return 0
	}
	return p.DeliveryFeeCents
}

// RateLimitConfig throttles the endpoints a client could use to brute force
// a secret (delivery codes, payment signatures).
type RateLimitConfig struct {
	Window             time.Duration `envconfig:"ORDERFLOW_RATE_LIMIT_WINDOW" default:"1m"`
	PaymentVerifyLimit int           `envconfig:"ORDERFLOW_RATE_LIMIT_PAYMENT_VERIFY" default:"10"`
	DeliveryLimit      int           `envconfig:"ORDERFLOW_RATE_LIMIT_DELIVERY" default:"10"`
	OTPResendLimit     int           `envconfig:"ORDERFLOW_RATE_LIMIT_OTP_RESEND" default:"3"`
}

type DeliveryConfig struct {
	OTPLength     int           `envconfig:"ORDERFLOW_DELIVERY_OTP_LENGTH" default:"6"`
	MaxAttempts   int           `envconfig:"ORDERFLOW_DELIVERY_OTP_MAX_ATTEMPTS" default:"5"`
	AttemptWindow time.Duration `envconfig:"ORDERFLOW_DELIVERY_OTP_ATTEMPT_WINDOW" default:"24h"`
}

func (d DeliveryConfig) validate() error {
	if d.OTPLength < 4 || d.OTPLength > 6 {
		return fmt.Errorf("%s must be between 4 and 6", EnvDeliveryOTPLength)
	}
	if d.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvDeliveryOTPMaxAttempts)
	}
	return nil
}

type GatewayConfig struct {
	BaseURL           string        `envconfig:"ORDERFLOW_GATEWAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	KeyID             string        `envconfig:"ORDERFLOW_GATEWAY_KEY_ID"`
	KeySecret         string        `envconfig:"ORDERFLOW_GATEWAY_KEY_SECRET"`
	WebhookSecret     string        `envconfig:"ORDERFLOW_GATEWAY_WEBHOOK_SECRET"`
	Timeout           time.Duration `envconfig:"ORDERFLOW_GATEWAY_TIMEOUT" default:"10s"`
	MaxVerifyAttempts int           `envconfig:"ORDERFLOW_GATEWAY_MAX_VERIFY_ATTEMPTS" default:"20"`
}

type OrdersConfig struct {
	UnpaidTTL time.Duration `envconfig:"ORDERFLOW_ORDERS_UNPAID_TTL" default:"30m"`
}

type PubSubConfig struct {
	ProjectID         string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	NotificationTopic string `envconfig:"ORDERFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"orderflow-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"1m"`
	UnpaidTTLEvery      time.Duration `envconfig:"ORDERFLOW_CRON_UNPAID_TTL_EVERY" default:"5m"`
	DuplicateScanEvery  time.Duration `envconfig:"ORDERFLOW_CRON_DUPLICATE_SCAN_EVERY" default:"15m"`
	DuplicateScanWindow time.Duration `envconfig:"ORDERFLOW_CRON_DUPLICATE_SCAN_WINDOW" default:"72h"`
	OutboxRetention     time.Duration `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION" default:"720h"`
	BatchSize           int           `envconfig:"ORDERFLOW_CRON_BATCH_SIZE" default:"200"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
