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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Purchase     PurchaseConfig
	RateLimit    RateLimitConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Purchase.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FOODRESCUE_APP_ENV" required:"true"`
	Port         string `envconfig:"FOODRESCUE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FOODRESCUE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FOODRESCUE_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"FOODRESCUE_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"FOODRESCUE_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FOODRESCUE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FOODRESCUE_DB_DSN"`
	Driver string `envconfig:"FOODRESCUE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FOODRESCUE_DB_HOST"`
	LegacyPort     int    `envconfig:"FOODRESCUE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FOODRESCUE_DB_USER"`
	LegacyPassword string `envconfig:"FOODRESCUE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FOODRESCUE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FOODRESCUE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FOODRESCUE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FOODRESCUE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FOODRESCUE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FOODRESCUE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FOODRESCUE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FOODRESCUE_REDIS_ADDR"`
	Password     string        `envconfig:"FOODRESCUE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FOODRESCUE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FOODRESCUE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FOODRESCUE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FOODRESCUE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FOODRESCUE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FOODRESCUE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the shared secret used to verify access tokens issued by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"FOODRESCUE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FOODRESCUE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FOODRESCUE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FOODRESCUE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FOODRESCUE_AUTO_MIGRATE" default:"false"`
	Metrics     bool `envconfig:"FOODRESCUE_METRICS_ENABLED" default:"true"`
}

// PurchaseConfig tunes the prepare/buy pipeline.
type PurchaseConfig struct {
	StagingTTL         time.Duration `envconfig:"FOODRESCUE_STAGING_TTL" default:"5m"`
	StagingGrace       time.Duration `envconfig:"FOODRESCUE_STAGING_GRACE" default:"10m"`
	StagingBackend     string        `envconfig:"FOODRESCUE_STAGING_BACKEND" default:"redis"`
	PickupCodeAttempts int           `envconfig:"FOODRESCUE_PICKUP_CODE_ATTEMPTS" default:"10"`
	MaxOffersPerSale   int           `envconfig:"FOODRESCUE_MAX_OFFERS_PER_SALE" default:"20"`
}

func (p PurchaseConfig) validate() error {
	if p.StagingTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvStagingTTL)
	}
	switch strings.ToLower(p.StagingBackend) {
	case StagingBackendRedis, StagingBackendMemory:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvStagingBackend, StagingBackendRedis, StagingBackendMemory)
	}
	return nil
}

// UsesMemoryStaging reports whether staged purchases live in process memory.
func (p PurchaseConfig) UsesMemoryStaging() bool {
	return strings.EqualFold(p.StagingBackend, StagingBackendMemory)
}

type RateLimitConfig struct {
	PrepareWindow time.Duration `envconfig:"FOODRESCUE_RATE_LIMIT_PREPARE_WINDOW" default:"1m"`
	PrepareLimit  int           `envconfig:"FOODRESCUE_RATE_LIMIT_PREPARE_LIMIT" default:"30"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FOODRESCUE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FOODRESCUE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FOODRESCUE_OUTBOX_MAX_ATTEMPTS" default:"10"`

	IdempotencyTTL time.Duration `envconfig:"FOODRESCUE_OUTBOX_IDEMPOTENCY_TTL" default:"168h"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"FOODRESCUE_CRON_INTERVAL" default:"15m"`
	OutboxRetentionDays int           `envconfig:"FOODRESCUE_CRON_OUTBOX_RETENTION_DAYS" default:"30"`

	NotificationRetentionDays int `envconfig:"FOODRESCUE_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OfferExpiryBatchSize      int `envconfig:"FOODRESCUE_CRON_OFFER_EXPIRY_BATCH_SIZE" default:"200"`
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
