package config

// EnvPrefix is the envconfig prefix; fields resolve through their explicit keys.
const EnvPrefix = "ARTISAN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "ARTISAN_APP_ENV"
	EnvPort            = "ARTISAN_APP_PORT"
	EnvDBDSN           = "ARTISAN_DB_DSN"
	EnvDBHost          = "ARTISAN_DB_HOST"
	EnvDBPort          = "ARTISAN_DB_PORT"
	EnvDBUser          = "ARTISAN_DB_USER"
	EnvDBPassword      = "ARTISAN_DB_PASSWORD"
	EnvDBName          = "ARTISAN_DB_NAME"
	EnvRedisURL        = "ARTISAN_REDIS_URL"
	EnvAuthJWTSecret   = "ARTISAN_AUTH_JWT_SECRET"
	EnvCheckoutBaseURL = "ARTISAN_CHECKOUT_PUBLIC_BASE_URL"
	EnvStripeAPIKey    = "ARTISAN_STRIPE_API_KEY"
	EnvStripeSecret    = "ARTISAN_STRIPE_SECRET"
	EnvVerifyAttempts  = "ARTISAN_VERIFICATION_ATTEMPTS"
	EnvVerifyInterval  = "ARTISAN_VERIFICATION_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
