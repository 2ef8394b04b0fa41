package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// Every variable is PAYOUTS_-prefixed; the tags below spell out full names.
const EnvPrefix = "PAYOUTS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Variable names referenced by error messages and tests.
const (
	EnvAppEnv              = "PAYOUTS_APP_ENV"
	EnvPort                = "PAYOUTS_APP_PORT"
	EnvDBDSN               = "PAYOUTS_DB_DSN"
	EnvDBHost              = "PAYOUTS_DB_HOST"
	EnvDBUser              = "PAYOUTS_DB_USER"
	EnvDBName              = "PAYOUTS_DB_NAME"
	EnvRedisURL            = "PAYOUTS_REDIS_URL"
	EnvRedisAddr           = "PAYOUTS_REDIS_ADDR"
	EnvJWTSecret           = "PAYOUTS_JWT_SECRET"
	EnvJWTIssuer           = "PAYOUTS_JWT_ISSUER"
	EnvCommissionRate      = "PAYOUTS_COMMISSION_RATE"
	EnvEligibleFulfillment = "PAYOUTS_ELIGIBLE_FULFILLMENT_STATUSES"
)

// Config is shared by the api, outbox-publisher, cron-worker and migrate binaries.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Payouts      PayoutsConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	API          APIConfig
}

// Load reads the environment and reports every invalid section at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.resolveDSN(),
		cfg.Redis.validate(),
		cfg.Payouts.validate(),
		cfg.Cron.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYOUTS_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYOUTS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAYOUTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAYOUTS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PAYOUTS_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool { return strings.EqualFold(a.Env, AppEnvDev) }

// ServiceConfig names the running binary in logs.
type ServiceConfig struct {
	Kind string `envconfig:"PAYOUTS_SERVICE_KIND" default:"api"`
}

// DBConfig takes a full DSN, or host/user/name parts that Load assembles
// into a postgres URL.
type DBConfig struct {
	DSN    string `envconfig:"PAYOUTS_DB_DSN"`
	Driver string `envconfig:"PAYOUTS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PAYOUTS_DB_HOST"`
	Port     int    `envconfig:"PAYOUTS_DB_PORT" default:"5432"`
	User     string `envconfig:"PAYOUTS_DB_USER"`
	Password string `envconfig:"PAYOUTS_DB_PASSWORD"`
	Name     string `envconfig:"PAYOUTS_DB_NAME"`
	SSLMode  string `envconfig:"PAYOUTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYOUTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYOUTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYOUTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYOUTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}

// RedisConfig accepts a redis:// URL or a bare address.
type RedisConfig struct {
	URL          string        `envconfig:"PAYOUTS_REDIS_URL"`
	Address      string        `envconfig:"PAYOUTS_REDIS_ADDR"`
	Password     string        `envconfig:"PAYOUTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYOUTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYOUTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYOUTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYOUTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYOUTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYOUTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) validate() error {
	if r.URL == "" && r.Address == "" {
		return fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

type JWTConfig struct {
	Secret string `envconfig:"PAYOUTS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"PAYOUTS_JWT_ISSUER" required:"true"`
	// ExpirationMinutes is the lifetime of tokens minted for tests and local tooling.
	ExpirationMinutes int `envconfig:"PAYOUTS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAYOUTS_AUTO_MIGRATE" default:"false"`
}

// PayoutsConfig is the settlement policy. The rate is kept as a string so
// the payouts package parses it straight into a decimal.
type PayoutsConfig struct {
	CommissionRate              string   `envconfig:"PAYOUTS_COMMISSION_RATE" default:"0.05"`
	EligibleFulfillmentStatuses []string `envconfig:"PAYOUTS_ELIGIBLE_FULFILLMENT_STATUSES" default:"completed,delivered,ready"`
	BatchPrefix                 string   `envconfig:"PAYOUTS_BATCH_PREFIX" default:"PB"`
}

func (p PayoutsConfig) validate() error {
	var err error
	if strings.TrimSpace(p.CommissionRate) == "" {
		err = multierr.Append(err, fmt.Errorf("%s is required", EnvCommissionRate))
	}
	if len(p.EligibleFulfillmentStatuses) == 0 {
		err = multierr.Append(err, fmt.Errorf("%s requires at least one status", EnvEligibleFulfillment))
	}
	return err
}

// CronConfig drives the cron-worker tick and its cross-instance lock.
type CronConfig struct {
	Interval time.Duration `envconfig:"PAYOUTS_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"PAYOUTS_CRON_LOCK_TTL" default:"55m"`
}

func (c CronConfig) validate() error {
	if c.Interval <= 0 || c.LockTTL <= 0 {
		return errors.New("cron interval and lock ttl must be positive")
	}
	return nil
}

type APIConfig struct {
	CORSOrigins         string        `envconfig:"PAYOUTS_API_CORS_ORIGINS"`
	MutationRateLimit   int           `envconfig:"PAYOUTS_API_MUTATION_RATE_LIMIT" default:"30"`
	MutationRateWindow  time.Duration `envconfig:"PAYOUTS_API_MUTATION_RATE_WINDOW" default:"1m"`
	ShutdownGracePeriod time.Duration `envconfig:"PAYOUTS_API_SHUTDOWN_GRACE" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PAYOUTS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PayoutsTopic string `envconfig:"PAYOUTS_PUBSUB_PAYOUTS_TOPIC" default:"payout-events"`
}

// OutboxConfig tunes the outbox publisher and the retention sweep.
type OutboxConfig struct {
	BatchSize      int           `envconfig:"PAYOUTS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"PAYOUTS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"PAYOUTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"PAYOUTS_OUTBOX_RETENTION" default:"720h"`
}
