package config

// EnvPrefix is passed to envconfig; every field carries its full key so the prefix is informational.
const EnvPrefix = "TOOLYARD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "TOOLYARD_APP_ENV"
	EnvPort            = "TOOLYARD_APP_PORT"
	EnvDBDSN           = "TOOLYARD_DB_DSN"
	EnvDBHost          = "TOOLYARD_DB_HOST"
	EnvDBUser          = "TOOLYARD_DB_USER"
	EnvDBName          = "TOOLYARD_DB_NAME"
	EnvRedisURL        = "TOOLYARD_REDIS_URL"
	EnvJWTSecret       = "TOOLYARD_JWT_SECRET"
	EnvJWTIssuer       = "TOOLYARD_JWT_ISSUER"
	EnvUseSQLite       = "TOOLYARD_USE_SQLITE"
	EnvMockPayments    = "TOOLYARD_MOCK_PAYMENTS"
	EnvPaymentFallback = "TOOLYARD_PAYMENT_FALLBACK"
	EnvTaxRate         = "TOOLYARD_CHECKOUT_TAX_RATE"
	EnvStripeAPIKey    = "TOOLYARD_STRIPE_API_KEY"
	EnvStripeSecret    = "TOOLYARD_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
