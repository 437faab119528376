package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Device     DeviceConfig     `yaml:"device"`
	Sync       SyncConfig       `yaml:"sync"`
	Database   DatabaseConfig   `yaml:"database"`
	Broker     BrokerConfig     `yaml:"broker"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port                int           `yaml:"port"`
	RateLimitPerSec     float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst      int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds     int           `yaml:"cache_ttl_seconds"`
	EventTimeoutSeconds int           `yaml:"event_timeout_seconds"`
	CacheTTL            time.Duration `yaml:"-"`
	EventTimeout        time.Duration `yaml:"-"`
}

// DeviceConfig describes how to reach the access-control terminal.
type DeviceConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MockMode       bool          `yaml:"mock_mode"`
	Timezone       string        `yaml:"timezone"`
	PageSize       int           `yaml:"page_size"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// BaseURL returns the ISAPI root of the device.
func (d DeviceConfig) BaseURL() string {
	if d.Port == 0 || d.Port == 80 {
		return fmt.Sprintf("http://%s", d.Host)
	}
	return fmt.Sprintf("http://%s:%d", d.Host, d.Port)
}

// Location resolves the device timezone, falling back to the local zone.
func (d DeviceConfig) Location() *time.Location {
	if d.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", d.Timezone).Msg("invalid device timezone, using local")
		return time.Local
	}
	return loc
}

// SyncConfig holds the roster reconciliation schedule.
type SyncConfig struct {
	Enabled             bool          `yaml:"enabled"`
	IntervalSeconds     int           `yaml:"interval_seconds"`
	MaxAttempts         int           `yaml:"max_attempts"`
	BackoffUnitSeconds  int           `yaml:"backoff_unit_seconds"`
	CooldownSeconds     int           `yaml:"cooldown_seconds"`
	FetchTimeoutSeconds int           `yaml:"fetch_timeout_seconds"`
	Interval            time.Duration `yaml:"-"` // Ignored by YAML parser
	BackoffUnit         time.Duration `yaml:"-"`
	Cooldown            time.Duration `yaml:"-"`
	FetchTimeout        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// BrokerConfig sizes the live event fan-out.
type BrokerConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads the configuration from the given path, then applies .env and
// environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Database.Driver = getEnvString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnvString("DATABASE_DSN", cfg.Database.DSN)
	cfg.Device.Host = getEnvString("DEVICE_IP", cfg.Device.Host)
	cfg.Device.Port = getEnvInt("DEVICE_PORT", cfg.Device.Port)
	cfg.Device.Username = getEnvString("DEVICE_USER", cfg.Device.Username)
	cfg.Device.Password = getEnvString("DEVICE_PASS", cfg.Device.Password)
	cfg.Device.MockMode = getEnvBool("MOCK_MODE", cfg.Device.MockMode)
	cfg.Sync.IntervalSeconds = getEnvInt("SYNC_INTERVAL", cfg.Sync.IntervalSeconds)
	cfg.Log.Level = getEnvString("LOG_LEVEL", cfg.Log.Level)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Server.EventTimeoutSeconds <= 0 {
		cfg.Server.EventTimeoutSeconds = 5
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cfg.Server.EventTimeout = time.Duration(cfg.Server.EventTimeoutSeconds) * time.Second

	if cfg.Device.Host == "" {
		cfg.Device.Host = "localhost"
	}
	if cfg.Device.PageSize <= 0 {
		cfg.Device.PageSize = 1000
	}
	if cfg.Device.TimeoutSeconds <= 0 {
		cfg.Device.TimeoutSeconds = 5
	}
	cfg.Device.Timeout = time.Duration(cfg.Device.TimeoutSeconds) * time.Second

	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 60
	}
	if cfg.Sync.MaxAttempts <= 0 {
		cfg.Sync.MaxAttempts = 3
	}
	if cfg.Sync.BackoffUnitSeconds <= 0 {
		cfg.Sync.BackoffUnitSeconds = 5
	}
	if cfg.Sync.CooldownSeconds <= 0 {
		cfg.Sync.CooldownSeconds = 10
	}
	if cfg.Sync.FetchTimeoutSeconds <= 0 {
		cfg.Sync.FetchTimeoutSeconds = 10
	}
	cfg.Sync.Interval = time.Duration(cfg.Sync.IntervalSeconds) * time.Second
	cfg.Sync.BackoffUnit = time.Duration(cfg.Sync.BackoffUnitSeconds) * time.Second
	cfg.Sync.Cooldown = time.Duration(cfg.Sync.CooldownSeconds) * time.Second
	cfg.Sync.FetchTimeout = time.Duration(cfg.Sync.FetchTimeoutSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "attendance.db"
	}

	if cfg.Broker.BufferSize <= 0 {
		cfg.Broker.BufferSize = 64
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Info().Msg("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func getEnvString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return fallback
}
