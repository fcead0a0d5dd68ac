// Package config defines the server configuration and its validation.
//
// Values are layered: Defaults, then an optional TOML file, then PARITY_*
// environment variables (a .env file in the working directory is loaded
// first when present).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure.
type Config struct {
	LogLevel  string          `toml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Seed      bool            `toml:"seed" envconfig:"SEED"`
	Server    ServerConfig    `toml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `toml:"database" envconfig:"DATABASE"`
	Redis     RedisConfig     `toml:"redis" envconfig:"REDIS"`
	S3        S3Config        `toml:"s3" envconfig:"S3"`
	Pricing   PricingConfig   `toml:"pricing" envconfig:"PRICING"`
	RateLimit RateLimitConfig `toml:"rate_limit" envconfig:"RATE_LIMIT"`
}

type ServerConfig struct {
	Port            int           `toml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `toml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `toml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `toml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// AllowReset exposes POST /api/v1/reset. Keep it off in production.
	AllowReset      bool          `toml:"allow_reset" envconfig:"ALLOW_RESET"`
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on the in-memory store.
type DatabaseConfig struct {
	URL           string `toml:"url" envconfig:"URL"`
	MaxConns      int32  `toml:"max_conns" envconfig:"MAX_CONNS" validate:"gte=0"`
	RunMigrations bool   `toml:"run_migrations" envconfig:"RUN_MIGRATIONS"`
}

// RedisConfig enables the snapshot cache when URL is set.
type RedisConfig struct {
	URL string        `toml:"url" envconfig:"URL"`
	TTL time.Duration `toml:"ttl" envconfig:"TTL" validate:"gt=0"`
}

// S3Config enables export archival when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint" envconfig:"ENDPOINT"`
	Region         string `toml:"region" envconfig:"REGION"`
	Bucket         string `toml:"bucket" envconfig:"BUCKET"`
	AccessKey      string `toml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey      string `toml:"secret_key" envconfig:"SECRET_KEY"`
	ForcePathStyle bool   `toml:"force_path_style" envconfig:"FORCE_PATH_STYLE"`
	Prefix         string `toml:"prefix" envconfig:"PREFIX"`
}

// PricingConfig seeds the stored settings when none exist yet.
type PricingConfig struct {
	ReferenceMarket   string  `toml:"reference_market" envconfig:"REFERENCE_MARKET"`
	WarningThreshold  float64 `toml:"warning_threshold" envconfig:"WARNING_THRESHOLD" validate:"gte=0"`
	CriticalThreshold float64 `toml:"critical_threshold" envconfig:"CRITICAL_THRESHOLD" validate:"gtefield=WarningThreshold"`
}

type RateLimitConfig struct {
	Enabled bool    `toml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `toml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `toml:"burst" envconfig:"BURST" validate:"gt=0"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{RunMigrations: true},
		Redis:    RedisConfig{TTL: 5 * time.Minute},
		S3:       S3Config{Region: "us-east-1", Prefix: "exports"},
		Pricing: PricingConfig{
			WarningThreshold:  5,
			CriticalThreshold: 10,
		},
		RateLimit: RateLimitConfig{Enabled: true, RPS: 50, Burst: 100},
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-section rules.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	if c.S3.Bucket != "" && (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		errs = append(errs, "s3: access_key and secret_key must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Thresholds returns the pricing thresholds as decimals.
func (p PricingConfig) Thresholds() (warning, critical decimal.Decimal) {
	return decimal.NewFromFloat(p.WarningThreshold), decimal.NewFromFloat(p.CriticalThreshold)
}
