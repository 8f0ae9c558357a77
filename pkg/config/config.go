package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Razorpay      RazorpayConfig
	Checkout      CheckoutConfig
	GuestCart     GuestCartConfig
	FeatureFlags  FeatureFlagsConfig
	Outbox        OutboxConfig
	CORS          CORSConfig
	AuthRateLimit AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEALICIOUS_APP_ENV" required:"true"`
	Port         string `envconfig:"MEALICIOUS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEALICIOUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEALICIOUS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"MEALICIOUS_DB_DSN"`

	Host     string `envconfig:"MEALICIOUS_DB_HOST"`
	Port     int    `envconfig:"MEALICIOUS_DB_PORT" default:"5432"`
	User     string `envconfig:"MEALICIOUS_DB_USER"`
	Password string `envconfig:"MEALICIOUS_DB_PASSWORD"`
	Name     string `envconfig:"MEALICIOUS_DB_NAME"`
	SSLMode  string `envconfig:"MEALICIOUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEALICIOUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEALICIOUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEALICIOUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEALICIOUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEALICIOUS_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"MEALICIOUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEALICIOUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEALICIOUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEALICIOUS_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"MEALICIOUS_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MEALICIOUS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MEALICIOUS_JWT_ISSUER" default:"mealicious"`
	ExpirationMinutes      int    `envconfig:"MEALICIOUS_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"MEALICIOUS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh session lifetime configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MEALICIOUS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MEALICIOUS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MEALICIOUS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MEALICIOUS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MEALICIOUS_ARGON_KEY_LEN" default:"32"`
}

type RazorpayConfig struct {
	KeyID          string `envconfig:"MEALICIOUS_RAZORPAY_KEY_ID" required:"true"`
	KeySecret      string `envconfig:"MEALICIOUS_RAZORPAY_KEY_SECRET" required:"true"`
	WebhookSecret  string `envconfig:"MEALICIOUS_RAZORPAY_WEBHOOK_SECRET" required:"true"`
	BaseURL        string `envconfig:"MEALICIOUS_RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
	TimeoutSeconds int    `envconfig:"MEALICIOUS_RAZORPAY_TIMEOUT_SECONDS" default:"10"`
}

// Timeout returns the per-call deadline for gateway requests.
func (r RazorpayConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type CheckoutConfig struct {
	Currency       string `envconfig:"MEALICIOUS_CHECKOUT_CURRENCY" default:"INR"`
	MinAmountMinor int64  `envconfig:"MEALICIOUS_CHECKOUT_MIN_AMOUNT_MINOR" default:"100"`
	SuccessURL     string `envconfig:"MEALICIOUS_CHECKOUT_SUCCESS_URL" default:"/order-success"`
}

func (c CheckoutConfig) validate() error {
	if c.MinAmountMinor <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutMinAmount)
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		return fmt.Errorf("%s must be an ISO 4217 code", EnvCheckoutCurrency)
	}
	return nil
}

type GuestCartConfig struct {
	TTLHours int `envconfig:"MEALICIOUS_GUEST_CART_TTL_HOURS" default:"168"`
}

// TTL returns how long an untouched guest cart survives in Redis.
func (g GuestCartConfig) TTL() time.Duration {
	if g.TTLHours <= 0 {
		return 168 * time.Hour
	}
	return time.Duration(g.TTLHours) * time.Hour
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEALICIOUS_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"MEALICIOUS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"MEALICIOUS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"MEALICIOUS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	ChannelPrefix  string `envconfig:"MEALICIOUS_OUTBOX_CHANNEL_PREFIX" default:"mealicious:events"`
	MetricsAddr    string `envconfig:"MEALICIOUS_OUTBOX_METRICS_ADDR"`
}

type AuthRateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"MEALICIOUS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit  int           `envconfig:"MEALICIOUS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit     int           `envconfig:"MEALICIOUS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	SignupWindow     time.Duration `envconfig:"MEALICIOUS_AUTH_RATE_LIMIT_SIGNUP_WINDOW" default:"5m"`
	SignupEmailLimit int           `envconfig:"MEALICIOUS_AUTH_RATE_LIMIT_SIGNUP_EMAIL_LIMIT" default:"3"`
	SignupIPLimit    int           `envconfig:"MEALICIOUS_AUTH_RATE_LIMIT_SIGNUP_IP_LIMIT" default:"20"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"MEALICIOUS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range componentDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
