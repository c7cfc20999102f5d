// Package config loads ledger configuration from .env, an optional YAML file
// and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/axomx/reward-ledger/internal/app/services/payment"
	"github.com/axomx/reward-ledger/internal/app/services/rewards"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// PathEnv names the environment variable holding the YAML config path.
const PathEnv = "LEDGER_CONFIG"

type ServerConfig struct {
	Host            string        `yaml:"host" env:"LEDGER_HOST"`
	Port            int           `yaml:"port" env:"LEDGER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"LEDGER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"LEDGER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LEDGER_SHUTDOWN_TIMEOUT"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig selects the postgres store. An empty DSN runs the ledger on
// the in-memory store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"LEDGER_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"LEDGER_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"LEDGER_DB_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env:"LEDGER_DB_MIGRATE"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Key      string `yaml:"key" env:"LEDGER_RECONCILE_KEY"`
}

// AuthConfig configures admin route authentication. Admin routes are
// disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"LEDGER_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"LEDGER_JWT_ISSUER"`
}

type ReconcileConfig struct {
	Enabled  bool          `yaml:"enabled" env:"LEDGER_RECONCILE_ENABLED"`
	Interval time.Duration `yaml:"interval" env:"LEDGER_RECONCILE_INTERVAL"`
}

type HTTPConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"LEDGER_CORS_ORIGINS"`
	RateLimit      float64  `yaml:"rate_limit" env:"LEDGER_RATE_LIMIT"`
	RateBurst      int      `yaml:"rate_burst" env:"LEDGER_RATE_BURST"`
	AuditFile      string   `yaml:"audit_file" env:"LEDGER_AUDIT_FILE"`
}

type LedgerConfig struct {
	RequireTxHash bool `yaml:"require_tx_hash" env:"LEDGER_REQUIRE_TX_HASH"`
}

// Config is the full runtime configuration of the ledger binaries.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Database  DatabaseConfig          `yaml:"database"`
	Logging   logger.LoggingConfig    `yaml:"logging"`
	Redis     RedisConfig             `yaml:"redis"`
	Payment   payment.Config          `yaml:"payment"`
	Auth      AuthConfig              `yaml:"auth"`
	Scheduler rewards.SchedulerConfig `yaml:"scheduler"`
	Reconcile ReconcileConfig         `yaml:"reconcile"`
	HTTP      HTTPConfig              `yaml:"http"`
	Ledger    LedgerConfig            `yaml:"ledger"`
	RatesFile string                  `yaml:"rates_file" env:"LEDGER_RATES_FILE"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			MigrateOnStart:  true,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Payment:   payment.Config{Timeout: 10 * time.Second, MaxRetries: 2},
		Scheduler: rewards.DefaultSchedulerConfig(),
		Reconcile: ReconcileConfig{Enabled: true, Interval: time.Minute},
		HTTP:      HTTPConfig{RateLimit: 20, RateBurst: 40},
	}
}

// Load reads configuration. path overrides $LEDGER_CONFIG; a missing .env is
// ignored, a missing YAML file named explicitly is not.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := New()
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	origins := c.HTTP.AllowedOrigins[:0]
	for _, o := range c.HTTP.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.HTTP.AllowedOrigins = origins
}

// Validate rejects values the binaries cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		return errors.New("reconcile.interval must be positive")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return errors.New("http rate limit must not be negative")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return errors.New("database pool sizes must not be negative")
	}
	return nil
}

// PostgresEnabled reports whether a DSN is configured.
func (c *Config) PostgresEnabled() bool { return c.Database.DSN != "" }

// RedisEnabled reports whether the reconciliation journal lives in redis.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }
