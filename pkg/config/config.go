package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Verification VerificationConfig
	Webhook      WebhookConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ARTISAN_APP_ENV" required:"true"`
	Port         string `envconfig:"ARTISAN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ARTISAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARTISAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig covers the public API surface.
type HTTPConfig struct {
	AllowedOrigins      []string      `envconfig:"ARTISAN_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	CheckoutRateLimit   int           `envconfig:"ARTISAN_CHECKOUT_RATE_LIMIT" default:"10"`
	CheckoutRateWindow  time.Duration `envconfig:"ARTISAN_CHECKOUT_RATE_WINDOW" default:"1m"`
	ShutdownGracePeriod time.Duration `envconfig:"ARTISAN_HTTP_SHUTDOWN_GRACE" default:"15s"`
}

type DBConfig struct {
	DSN    string `envconfig:"ARTISAN_DB_DSN"`
	Driver string `envconfig:"ARTISAN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ARTISAN_DB_HOST"`
	LegacyPort     int    `envconfig:"ARTISAN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ARTISAN_DB_USER"`
	LegacyPassword string `envconfig:"ARTISAN_DB_PASSWORD"`
	LegacyName     string `envconfig:"ARTISAN_DB_NAME"`
	LegacySSLMode  string `envconfig:"ARTISAN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARTISAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ARTISAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ARTISAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARTISAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"ARTISAN_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARTISAN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ARTISAN_REDIS_ADDR"`
	Password     string        `envconfig:"ARTISAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARTISAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARTISAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARTISAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARTISAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARTISAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARTISAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig describes how access tokens minted by the hosted auth provider are verified.
type AuthConfig struct {
	JWTSecret string `envconfig:"ARTISAN_AUTH_JWT_SECRET" required:"true"`
	Issuer    string `envconfig:"ARTISAN_AUTH_JWT_ISSUER"`
	Audience  string `envconfig:"ARTISAN_AUTH_JWT_AUDIENCE" default:"authenticated"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"ARTISAN_AUTO_MIGRATE" default:"false"`
	WebhookGuard   bool `envconfig:"ARTISAN_FEATURE_WEBHOOK_GUARD" default:"true"`
	IdempotencyKey bool `envconfig:"ARTISAN_FEATURE_REQUIRE_IDEMPOTENCY_KEY" default:"true"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"ARTISAN_STRIPE_API_KEY"`
	Secret         string        `envconfig:"ARTISAN_STRIPE_SECRET"`
	Env            string        `envconfig:"ARTISAN_STRIPE_ENV" default:"test"`
	Currency       string        `envconfig:"ARTISAN_STRIPE_CURRENCY" default:"usd"`
	RequestTimeout time.Duration `envconfig:"ARTISAN_STRIPE_REQUEST_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	PublicBaseURL string `envconfig:"ARTISAN_CHECKOUT_PUBLIC_BASE_URL" required:"true"`
	SuccessPath   string `envconfig:"ARTISAN_CHECKOUT_SUCCESS_PATH" default:"/checkout/success"`
	CancelPath    string `envconfig:"ARTISAN_CHECKOUT_CANCEL_PATH" default:"/checkout"`
}

// SuccessURL builds the redirect target; Stripe substitutes the session id placeholder.
func (c CheckoutConfig) SuccessURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + c.SuccessPath + "?session_id={CHECKOUT_SESSION_ID}"
}

func (c CheckoutConfig) CancelURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + c.CancelPath
}

type VerificationConfig struct {
	Attempts int           `envconfig:"ARTISAN_VERIFICATION_ATTEMPTS" default:"5"`
	Interval time.Duration `envconfig:"ARTISAN_VERIFICATION_INTERVAL" default:"1s"`
}

type WebhookConfig struct {
	EventGuardTTL time.Duration `envconfig:"ARTISAN_WEBHOOK_EVENT_GUARD_TTL" default:"72h"`
	MaxBodyBytes  int64         `envconfig:"ARTISAN_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"ARTISAN_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"ARTISAN_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	PurchaseTopic string `envconfig:"ARTISAN_PUBSUB_PURCHASE_TOPIC" default:"artisan-purchase-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ARTISAN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ARTISAN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ARTISAN_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
