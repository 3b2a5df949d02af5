package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Stripe        StripeConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations that must never reach production.
func (c Config) Validate() error {
	if c.App.IsProd() {
		if c.FeatureFlags.MockPayments {
			return fmt.Errorf("%s cannot be enabled in production", EnvMockPayments)
		}
		if c.FeatureFlags.PaymentFallback {
			return fmt.Errorf("%s cannot be enabled in production", EnvPaymentFallback)
		}
		if c.FeatureFlags.UseSQLite {
			return fmt.Errorf("%s cannot be enabled in production", EnvUseSQLite)
		}
	}
	if !c.FeatureFlags.MockPayments && strings.TrimSpace(c.Stripe.APIKey) == "" {
		return fmt.Errorf("%s is required unless %s is set", EnvStripeAPIKey, EnvMockPayments)
	}
	if _, err := c.Checkout.Rate(); err != nil {
		return err
	}
	return nil
}

type AppConfig struct {
	Env          string   `envconfig:"TOOLYARD_APP_ENV" required:"true"`
	Port         string   `envconfig:"TOOLYARD_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TOOLYARD_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"TOOLYARD_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"TOOLYARD_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"TOOLYARD_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN        string `envconfig:"TOOLYARD_DB_DSN"`
	Driver     string `envconfig:"TOOLYARD_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"TOOLYARD_DB_SQLITE_PATH" default:"toolyard.db"`

	LegacyHost     string `envconfig:"TOOLYARD_DB_HOST"`
	LegacyPort     int    `envconfig:"TOOLYARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TOOLYARD_DB_USER"`
	LegacyPassword string `envconfig:"TOOLYARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"TOOLYARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"TOOLYARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TOOLYARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TOOLYARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TOOLYARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TOOLYARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TOOLYARD_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TOOLYARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TOOLYARD_REDIS_ADDR"`
	Password     string        `envconfig:"TOOLYARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"TOOLYARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TOOLYARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TOOLYARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TOOLYARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TOOLYARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TOOLYARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TOOLYARD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TOOLYARD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TOOLYARD_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TOOLYARD_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TOOLYARD_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TOOLYARD_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TOOLYARD_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TOOLYARD_ARGON_KEY_LEN" default:"32"`
}

// RateLimitConfig holds fixed-window limits. A zero limit turns that counter off.
type RateLimitConfig struct {
	LoginWindow       time.Duration `envconfig:"TOOLYARD_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit   int           `envconfig:"TOOLYARD_RATE_LIMIT_LOGIN_EMAIL" default:"5"`
	LoginIPLimit      int           `envconfig:"TOOLYARD_RATE_LIMIT_LOGIN_IP" default:"20"`
	AccountWindow     time.Duration `envconfig:"TOOLYARD_RATE_LIMIT_ACCOUNT_WINDOW" default:"5m"`
	AccountEmailLimit int           `envconfig:"TOOLYARD_RATE_LIMIT_ACCOUNT_EMAIL" default:"3"`
	AccountIPLimit    int           `envconfig:"TOOLYARD_RATE_LIMIT_ACCOUNT_IP" default:"20"`
	IntentWindow      time.Duration `envconfig:"TOOLYARD_RATE_LIMIT_INTENT_WINDOW" default:"10m"`
	IntentGuestLimit  int           `envconfig:"TOOLYARD_RATE_LIMIT_INTENT_GUEST" default:"10"`
	IntentIPLimit     int           `envconfig:"TOOLYARD_RATE_LIMIT_INTENT_IP" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"TOOLYARD_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"TOOLYARD_AUTO_MIGRATE" default:"false"`
	MockPayments    bool `envconfig:"TOOLYARD_MOCK_PAYMENTS" default:"false"`
	PaymentFallback bool `envconfig:"TOOLYARD_PAYMENT_FALLBACK" default:"false"`
}

type CheckoutConfig struct {
	Currency        string        `envconfig:"TOOLYARD_CHECKOUT_CURRENCY" default:"usd"`
	TaxRate         string        `envconfig:"TOOLYARD_CHECKOUT_TAX_RATE" default:"0.0825"`
	SessionTTL      time.Duration `envconfig:"TOOLYARD_CHECKOUT_SESSION_TTL" default:"2h"`
	ConfirmLockTTL  time.Duration `envconfig:"TOOLYARD_CHECKOUT_CONFIRM_LOCK_TTL" default:"30s"`
	IdempotencyTTL  time.Duration `envconfig:"TOOLYARD_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	GuestCartTTL    time.Duration `envconfig:"TOOLYARD_GUEST_CART_TTL" default:"720h"`
	RecentlyViewed  int           `envconfig:"TOOLYARD_RECENTLY_VIEWED_LIMIT" default:"20"`
	WalletDomainSet bool          `envconfig:"TOOLYARD_WALLET_DOMAIN_VERIFIED" default:"false"`
}

// Rate parses the configured flat tax rate.
func (c CheckoutConfig) Rate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.TaxRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal: %w", EnvTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0,1)", EnvTaxRate)
	}
	return rate, nil
}

type StripeConfig struct {
	APIKey string `envconfig:"TOOLYARD_STRIPE_API_KEY"`
	Secret string `envconfig:"TOOLYARD_STRIPE_SECRET"`
	Env    string `envconfig:"TOOLYARD_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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
