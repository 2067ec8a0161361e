package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv          = "FITLIFE_APP_ENV"
	EnvAppPort         = "FITLIFE_APP_PORT"
	EnvLogLevel        = "FITLIFE_LOG_LEVEL"
	EnvLogFormat       = "FITLIFE_LOG_FORMAT"
	EnvDBDriver        = "FITLIFE_DB_DRIVER"
	EnvDBDSN           = "FITLIFE_DB_DSN"
	EnvRedisURL        = "FITLIFE_REDIS_URL"
	EnvVAPIDPublicKey  = "FITLIFE_VAPID_PUBLIC_KEY"
	EnvVAPIDPrivateKey = "FITLIFE_VAPID_PRIVATE_KEY"
	EnvVAPIDSubject    = "FITLIFE_VAPID_SUBJECT"
	EnvJWTSecret       = "FITLIFE_JWT_SECRET"
	EnvSchedulerCron   = "FITLIFE_SCHEDULER_CRON"
	EnvClientBaseURL   = "FITLIFE_CLIENT_BASE_URL"
	EnvClientToken     = "FITLIFE_CLIENT_TOKEN"
	EnvClientStoreType = "FITLIFE_CLIENT_STORE_TYPE"
	EnvClientStoreDSN  = "FITLIFE_CLIENT_STORE_DSN"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Push      PushConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Client    ClientConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads the given .env files (or ./.env) into the process
// environment without overriding variables that are already set.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

type AppConfig struct {
	Env          string `envconfig:"FITLIFE_APP_ENV" default:"dev"`
	Port         string `envconfig:"FITLIFE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FITLIFE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FITLIFE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FITLIFE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver string `envconfig:"FITLIFE_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"FITLIFE_DB_DSN" default:"fitlife.db"`

	MaxOpenConns    int           `envconfig:"FITLIFE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FITLIFE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FITLIFE_DB_CONN_MAX_LIFETIME" default:"1h"`
}

func (db DBConfig) validate() error {
	switch strings.ToLower(db.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", db.Driver)
	}
	if db.DSN == "" {
		return fmt.Errorf("%s is required", EnvDBDSN)
	}
	return nil
}

type RedisConfig struct {
	URL string `envconfig:"FITLIFE_REDIS_URL"`
}

// Enabled reports whether a redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type PushConfig struct {
	VAPIDPublicKey  string `envconfig:"FITLIFE_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"FITLIFE_VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `envconfig:"FITLIFE_VAPID_SUBJECT" default:"mailto:support@fitlife.example"`
	TTL             int    `envconfig:"FITLIFE_PUSH_TTL" default:"86400"`
	Concurrency     int    `envconfig:"FITLIFE_PUSH_CONCURRENCY" default:"8"`
}

type JWTConfig struct {
	Secret string        `envconfig:"FITLIFE_JWT_SECRET"`
	Issuer string        `envconfig:"FITLIFE_JWT_ISSUER" default:"fitlife"`
	TTL    time.Duration `envconfig:"FITLIFE_JWT_TTL" default:"24h"`
}

type SchedulerConfig struct {
	// Cron is empty by default: due notifications are then delivered only
	// when an external scheduler calls the deliver-due entry point.
	Cron     string        `envconfig:"FITLIFE_SCHEDULER_CRON"`
	Timezone string        `envconfig:"FITLIFE_SCHEDULER_TIMEZONE" default:"UTC"`
	LockTTL  time.Duration `envconfig:"FITLIFE_SCHEDULER_LOCK_TTL" default:"5m"`
}

func (s SchedulerConfig) Enabled() bool {
	return strings.TrimSpace(s.Cron) != ""
}

type ClientConfig struct {
	BaseURL         string        `envconfig:"FITLIFE_CLIENT_BASE_URL" default:"http://localhost:8080"`
	Token           string        `envconfig:"FITLIFE_CLIENT_TOKEN"`
	StoreType       string        `envconfig:"FITLIFE_CLIENT_STORE_TYPE" default:"sqlite"`
	StoreDSN        string        `envconfig:"FITLIFE_CLIENT_STORE_DSN" default:"fitlife-offline.db"`
	RoutesFile      string        `envconfig:"FITLIFE_CLIENT_ROUTES_FILE"`
	MaxRetries      int           `envconfig:"FITLIFE_CLIENT_MAX_RETRIES" default:"5"`
	BackoffBase     time.Duration `envconfig:"FITLIFE_CLIENT_BACKOFF_BASE" default:"2s"`
	BackoffMax      time.Duration `envconfig:"FITLIFE_CLIENT_BACKOFF_MAX" default:"5m"`
	ReplayRate      float64       `envconfig:"FITLIFE_CLIENT_REPLAY_RATE" default:"0"`
	CleanupInterval time.Duration `envconfig:"FITLIFE_CLIENT_CLEANUP_INTERVAL" default:"10m"`
}
