package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Settlement   SettlementConfig
	Dispatch     DispatchConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	RateLimit    RateLimitConfig
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
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRADEDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"TRADEDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRADEDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADEDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRADEDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"TRADEDESK_DB_DSN"`

	Host     string `envconfig:"TRADEDESK_DB_HOST"`
	Port     int    `envconfig:"TRADEDESK_DB_PORT" default:"5432"`
	User     string `envconfig:"TRADEDESK_DB_USER"`
	Password string `envconfig:"TRADEDESK_DB_PASSWORD"`
	Name     string `envconfig:"TRADEDESK_DB_NAME"`
	SSLMode  string `envconfig:"TRADEDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRADEDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	if db.Host == "" {
		missing = append(missing, "TRADEDESK_DB_HOST")
	}
	if db.User == "" {
		missing = append(missing, "TRADEDESK_DB_USER")
	}
	if db.Name == "" {
		missing = append(missing, "TRADEDESK_DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("database config incomplete, set TRADEDESK_DB_DSN or: %s", strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	q := dsn.Query()
	q.Set("sslmode", db.SSLMode)
	dsn.RawQuery = q.Encode()

	db.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEDESK_REDIS_URL"`
	Address      string        `envconfig:"TRADEDESK_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRADEDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRADEDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRADEDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// SettlementConfig carries the revenue-share policy. The fee percent is
// operator-side configuration and never accepted from a request body.
type SettlementConfig struct {
	FeePercent int64 `envconfig:"TRADEDESK_SETTLEMENT_FEE_PERCENT" default:"20"`
}

func (s SettlementConfig) validate() error {
	if s.FeePercent < 0 || s.FeePercent > 100 {
		return fmt.Errorf("settlement fee percent must be within [0,100], got %d", s.FeePercent)
	}
	return nil
}

// DispatchConfig tunes the callout engine. ResponseStaleAfter of zero keeps
// pending responses open indefinitely (the default, operator-driven flow).
type DispatchConfig struct {
	ResponseStaleAfter time.Duration `envconfig:"TRADEDESK_DISPATCH_RESPONSE_STALE_AFTER" default:"0"`
}

// RateLimitConfig throttles the write-heavy dispatch surfaces. A zero window
// disables the corresponding policy.
type RateLimitConfig struct {
	BroadcastWindow     time.Duration `envconfig:"TRADEDESK_RATE_LIMIT_BROADCAST_WINDOW" default:"1m"`
	BroadcastIPLimit    int           `envconfig:"TRADEDESK_RATE_LIMIT_BROADCAST_IP_LIMIT" default:"30"`
	BroadcastActorLimit int           `envconfig:"TRADEDESK_RATE_LIMIT_BROADCAST_ACTOR_LIMIT" default:"10"`
	RespondWindow       time.Duration `envconfig:"TRADEDESK_RATE_LIMIT_RESPOND_WINDOW" default:"1m"`
	RespondIPLimit      int           `envconfig:"TRADEDESK_RATE_LIMIT_RESPOND_IP_LIMIT" default:"60"`
	RespondActorLimit   int           `envconfig:"TRADEDESK_RATE_LIMIT_RESPOND_ACTOR_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRADEDESK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TRADEDESK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TRADEDESK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DispatchTopic            string `envconfig:"TRADEDESK_PUBSUB_DISPATCH_TOPIC" default:"td-dispatch-events"`
	DispatchSubscription     string `envconfig:"TRADEDESK_PUBSUB_DISPATCH_SUBSCRIPTION"`
	NotificationTopic        string `envconfig:"TRADEDESK_PUBSUB_NOTIFICATION_TOPIC" default:"td-notification-events"`
	NotificationSubscription string `envconfig:"TRADEDESK_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TRADEDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TRADEDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TRADEDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
