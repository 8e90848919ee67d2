package config

// EnvPrefix is empty because every field carries its fully qualified envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "ORDERFLOW_APP_ENV"
	EnvPort     = "ORDERFLOW_APP_PORT"
	EnvLogLevel = "ORDERFLOW_LOG_LEVEL"

	EnvDBDSN  = "ORDERFLOW_DB_DSN"
	EnvDBHost = "ORDERFLOW_DB_HOST"
	EnvDBUser = "ORDERFLOW_DB_USER"
	EnvDBName = "ORDERFLOW_DB_NAME"

	EnvUseSQLite = "ORDERFLOW_USE_SQLITE"

	EnvRedisURL  = "ORDERFLOW_REDIS_URL"
	EnvJWTSecret = "ORDERFLOW_JWT_SECRET"
	EnvJWTIssuer = "ORDERFLOW_JWT_ISSUER"

	EnvDeliveryOTPLength      = "ORDERFLOW_DELIVERY_OTP_LENGTH"
	EnvDeliveryOTPMaxAttempts = "ORDERFLOW_DELIVERY_OTP_MAX_ATTEMPTS"

	EnvCurrency              = "ORDERFLOW_CURRENCY"
	EnvFreeDeliveryThreshold = "ORDERFLOW_FREE_DELIVERY_THRESHOLD_CENTS"
	EnvDeliveryFee           = "ORDERFLOW_DELIVERY_FEE_CENTS"
	EnvGatewayKeySecret      = "ORDERFLOW_GATEWAY_KEY_SECRET"
	EnvGatewayTimeout        = "ORDERFLOW_GATEWAY_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
