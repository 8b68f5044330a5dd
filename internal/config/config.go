// Package config loads and validates service configuration from the environment
// and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minSecretLength = 16

// Config holds process configuration.
type Config struct {
	// HTTPAddr is the REST listener address.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr enables the gRPC health service when non-empty.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret signs session tokens (HS256).
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim written into and required from session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// TokenTTL adds an exp claim when positive. Zero keeps tokens valid until revoked.
	TokenTTL time.Duration `mapstructure:"TOKEN_TTL"`
	// BcryptCost is the password work factor (4–31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `mapstructure:"MAX_BODY_BYTES"`
	// MigrateOnStart applies embedded migrations before serving when a DSN is set.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the deployment environment, e.g. "development" or "production".
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "contractdesk")
	v.SetDefault("TOKEN_TTL", "0s")
	v.SetDefault("BCRYPT_COST", 8)
	v.SetDefault("MAX_BODY_BYTES", 1<<20)
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if c.Production() && len(c.JWTSecret) < minSecretLength {
		return errors.New("config: JWT_SECRET must be at least 16 characters in production")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.TokenTTL < 0 {
		return errors.New("config: TOKEN_TTL must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	return nil
}

// Production reports whether APP_ENV names a production deployment.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// UsesPostgres reports whether a DSN was configured.
func (c *Config) UsesPostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}
