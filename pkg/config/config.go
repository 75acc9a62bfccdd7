package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "FLWGW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "FLWGW_APP_ENV"
	EnvPort          = "FLWGW_APP_PORT"
	EnvDBDSN         = "FLWGW_DB_DSN"
	EnvDBHost        = "FLWGW_DB_HOST"
	EnvDBUser        = "FLWGW_DB_USER"
	EnvDBName        = "FLWGW_DB_NAME"
	EnvRedisURL      = "FLWGW_REDIS_URL"
	EnvFlwSecretKey  = "FLWGW_FLW_SECRET_KEY"
	EnvRedirectURL   = "FLWGW_CHECKOUT_REDIRECT_URL"
	EnvGCPProjectID  = "FLWGW_GCP_PROJECT_ID"
	EnvPaymentsTopic = "FLWGW_PUBSUB_PAYMENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Flutterwave  FlutterwaveConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
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
	Env          string `envconfig:"FLWGW_APP_ENV" required:"true"`
	Port         string `envconfig:"FLWGW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FLWGW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FLWGW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FLWGW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FLWGW_DB_DSN"`
	Driver string `envconfig:"FLWGW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FLWGW_DB_HOST"`
	LegacyPort     int    `envconfig:"FLWGW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FLWGW_DB_USER"`
	LegacyPassword string `envconfig:"FLWGW_DB_PASSWORD"`
	LegacyName     string `envconfig:"FLWGW_DB_NAME"`
	LegacySSLMode  string `envconfig:"FLWGW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FLWGW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FLWGW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FLWGW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FLWGW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FLWGW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FLWGW_REDIS_ADDR"`
	Password     string        `envconfig:"FLWGW_REDIS_PASSWORD"`
	DB           int           `envconfig:"FLWGW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FLWGW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FLWGW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FLWGW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FLWGW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FLWGW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FlutterwaveConfig struct {
	BaseURL       string        `envconfig:"FLWGW_FLW_BASE_URL" default:"https://api.flutterwave.com/v3/"`
	SecretKey     string        `envconfig:"FLWGW_FLW_SECRET_KEY" required:"true"`
	PublicKey     string        `envconfig:"FLWGW_FLW_PUBLIC_KEY"`
	WebhookSecret string        `envconfig:"FLWGW_FLW_WEBHOOK_SECRET"`
	Env           string        `envconfig:"FLWGW_FLW_ENV" default:"test"`
	HTTPTimeout   time.Duration `envconfig:"FLWGW_FLW_HTTP_TIMEOUT" default:"30s"`
	MaxRetries    int           `envconfig:"FLWGW_FLW_MAX_RETRIES" default:"2"`
}

// Environment returns the normalized provider environment (test/live).
func (f FlutterwaveConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(f.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	RedirectURL     string `envconfig:"FLWGW_CHECKOUT_REDIRECT_URL" required:"true"`
	DefaultCurrency string `envconfig:"FLWGW_CHECKOUT_DEFAULT_CURRENCY" default:"NGN"`
	Title           string `envconfig:"FLWGW_CHECKOUT_TITLE" default:"Order payment"`
	LogoURL         string `envconfig:"FLWGW_CHECKOUT_LOGO_URL"`
	// MinFirstCharge maps currency code to the minor-unit floor substituted
	// for a zero first charge, e.g. "NGN:10000,USD:100". Empty means a zero
	// first charge on a subscription is rejected.
	MinFirstCharge map[string]int64 `envconfig:"FLWGW_CHECKOUT_MIN_FIRST_CHARGE"`
}

type FeatureFlagsConfig struct {
	UseSQLite         bool     `envconfig:"FLWGW_USE_SQLITE" default:"false"`
	AutoMigrate       bool     `envconfig:"FLWGW_AUTO_MIGRATE" default:"false"`
	PaymentOptions    []string `envconfig:"FLWGW_FEATURE_PAYMENT_OPTIONS"`
	AutoCompleteOrder bool     `envconfig:"FLWGW_FEATURE_AUTO_COMPLETE_ORDER" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"FLWGW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FLWGW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FLWGW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FLWGW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic        string `envconfig:"FLWGW_PUBSUB_PAYMENTS_TOPIC" required:"true"`
	PaymentsSubscription string `envconfig:"FLWGW_PUBSUB_PAYMENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FLWGW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FLWGW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FLWGW_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
