package config

const (
	EnvPrefix = "MEALICIOUS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv                 = "MEALICIOUS_APP_ENV"
	EnvPort                   = "MEALICIOUS_APP_PORT"
	EnvDBDSN                  = "MEALICIOUS_DB_DSN"
	EnvDBHost                 = "MEALICIOUS_DB_HOST"
	EnvDBUser                 = "MEALICIOUS_DB_USER"
	EnvDBName                 = "MEALICIOUS_DB_NAME"
	EnvDBPassword             = "MEALICIOUS_DB_PASSWORD"
	EnvRedisURL               = "MEALICIOUS_REDIS_URL"
	EnvJWTSecret              = "MEALICIOUS_JWT_SECRET"
	EnvJWTIssuer              = "MEALICIOUS_JWT_ISSUER"
	EnvJWTExpMins             = "MEALICIOUS_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "MEALICIOUS_REFRESH_TOKEN_TTL_MINUTES"
	EnvRazorpayKeyID          = "MEALICIOUS_RAZORPAY_KEY_ID"
	EnvRazorpayKeySecret      = "MEALICIOUS_RAZORPAY_KEY_SECRET"
	EnvRazorpayWebhookSecret  = "MEALICIOUS_RAZORPAY_WEBHOOK_SECRET"
	EnvRazorpayTimeout        = "MEALICIOUS_RAZORPAY_TIMEOUT_SECONDS"
	EnvCheckoutCurrency       = "MEALICIOUS_CHECKOUT_CURRENCY"
	EnvCheckoutMinAmount      = "MEALICIOUS_CHECKOUT_MIN_AMOUNT_MINOR"
	EnvGuestCartTTLHours      = "MEALICIOUS_GUEST_CART_TTL_HOURS"
	EnvCORSAllowedOrigins     = "MEALICIOUS_CORS_ALLOWED_ORIGINS"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
