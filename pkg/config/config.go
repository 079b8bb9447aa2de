package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `env:", prefix=SERVER_"`
	MySQL    MySQLConfig    `env:", prefix=MYSQL_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
	NATS     NATSConfig     `env:", prefix=NATS_"`
	Provider ProviderConfig `env:", prefix=FMP_"`
	Sync     SyncConfig     `env:", prefix=SYNC_"`
	Logging  LoggingConfig  `env:", prefix=LOG_"`
}

// ServerConfig holds status API server configuration.
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// MySQLConfig holds MySQL configuration.
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=stocksync"`
	User            string        `env:"USER, default=stocksync"`
	Password        string        `env:"PASSWORD"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// RedisConfig holds Redis configuration. Redis is optional; leave Enabled
// false to run without the progress snapshot cache.
type RedisConfig struct {
	Enabled      bool          `env:"ENABLED, default=false"`
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
	SnapshotTTL  time.Duration `env:"SNAPSHOT_TTL, default=5m"`
}

// NATSConfig holds NATS configuration. NATS is optional; sync events are
// only published when Enabled is true.
type NATSConfig struct {
	Enabled       bool          `env:"ENABLED, default=false"`
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// ProviderConfig holds FMP API configuration.
type ProviderConfig struct {
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL, default=https://financialmodelingprep.com/api/v3"`
	Timeout time.Duration `env:"TIMEOUT, default=30s"`
}

// SyncConfig holds synchronization engine configuration.
type SyncConfig struct {
	CallsPerMinute      int           `env:"CALLS_PER_MINUTE, default=250"`
	Workers             int           `env:"WORKERS, default=1"`
	SymbolPause         time.Duration `env:"SYMBOL_PAUSE, default=1s"`
	CheckpointEvery     int           `env:"CHECKPOINT_EVERY, default=5"`
	GapSlackDays        int           `env:"GAP_SLACK_DAYS, default=5"`
	LookbackDays        int           `env:"LOOKBACK_DAYS, default=1825"`
	CompleteCoveragePct float64       `env:"COMPLETE_COVERAGE_PCT, default=99"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=text"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig.
// A .env file, if present nearby, fills in variables not already set.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}
	if c.Sync.CallsPerMinute <= 0 {
		return fmt.Errorf("calls per minute must be positive, got %d", c.Sync.CallsPerMinute)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Sync.Workers)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required when Redis is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required when NATS is enabled")
	}
	return nil
}

// GetMySQLDSN returns the MySQL DSN string.
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns the Redis address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns the status server address.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
