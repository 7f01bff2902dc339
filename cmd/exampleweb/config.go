package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v3"
)

// Config is read from defaults, then an optional YAML file, then the
// environment. Later sources win.
type Config struct {
	Port          int           `yaml:"port" envconfig:"SERVER_PORT"`
	HitsPerPeriod float64       `yaml:"hits_per_period" envconfig:"HITS_PER_PERIOD"`
	Period        time.Duration `yaml:"period" envconfig:"PERIOD"`
	MaxClients    int           `yaml:"max_clients" envconfig:"MAX_CLIENTS"`
	ExpireBatch   int           `yaml:"expire_batch" envconfig:"EXPIRE_BATCH"`
	TrustProxy    bool          `yaml:"trust_proxy" envconfig:"TRUST_PROXY"` // key clients by X-Forwarded-For
	RedisURL      string        `yaml:"redis_url" envconfig:"REDIS_URL"`     // empty logs events instead
	RedisStream   string        `yaml:"redis_stream" envconfig:"REDIS_STREAM"`
	NTPServer     string        `yaml:"ntp_server" envconfig:"NTP_SERVER"` // empty uses the system clock
	LogLevel      string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" envconfig:"SHUTDOWN_GRACE"`
}

// NewDefault returns the configuration used when nothing is overridden.
func NewDefault() Config {
	return Config{
		Port:          8080,
		HitsPerPeriod: 3,
		Period:        10 * time.Second,
		MaxClients:    1000000,
		RedisStream:   "hitledger",
		LogLevel:      "info",
		ShutdownGrace: 10 * time.Second,
	}
}

// LoadConfig builds the configuration. path may be empty.
func LoadConfig(path string) (Config, error) {
	cfg := NewDefault()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every setting that would stop the server from starting.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.HitsPerPeriod <= 0 {
		errs = append(errs, fmt.Errorf("hits per period must be positive, got %v", c.HitsPerPeriod))
	}
	if c.Period <= 0 {
		errs = append(errs, fmt.Errorf("period must be positive, got %v", c.Period))
	}
	if c.MaxClients < 0 {
		errs = append(errs, fmt.Errorf("max clients must not be negative, got %d", c.MaxClients))
	}
	if c.ExpireBatch < 0 {
		errs = append(errs, fmt.Errorf("expire batch must not be negative, got %d", c.ExpireBatch))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
