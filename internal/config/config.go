package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

// Store backends selectable via STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendPgx      = "pgx"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	StoreBackend          string `env:"STORE_BACKEND" envDefault:"memory"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisURL              string `env:"REDIS_URL"`
	CacheTTLSeconds       int    `env:"CACHE_TTL_SECONDS" envDefault:"5"`
	JWTSigningKey         string `env:"JWT_SIGNING_KEY,notEmpty"`
	JWTIssuer             string `env:"JWT_ISSUER" envDefault:"attendance"`
	DefaultTimezone       string `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`
	StoreMaxAttempts      uint   `env:"STORE_MAX_ATTEMPTS" envDefault:"8"`
	SubmitRateLimitPerMin int    `env:"SUBMIT_RATE_LIMIT_PER_MIN" envDefault:"60"`
	IPRateLimitPerMin     int    `env:"IP_RATE_LIMIT_PER_MIN" envDefault:"300"`
	SessionSweepSeconds   int    `env:"SESSION_SWEEP_SECONDS" envDefault:"60"`
	MaxBodyBytes          int64  `env:"MAX_BODY_BYTES" envDefault:"65536"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) SessionSweepInterval() time.Duration {
	if c.SessionSweepSeconds <= 0 {
		return CleanupJobInterval
	}
	return time.Duration(c.SessionSweepSeconds) * time.Second
}

// Location resolves DEFAULT_TIMEZONE. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SQLBackend reports whether the primary store lives in a SQL database.
func (c *Config) SQLBackend() bool {
	switch c.StoreBackend {
	case BackendPostgres, BackendPgx, BackendSQLite:
		return true
	}
	return false
}

func (c *Config) Validate(isProduction bool) error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=%s", c.StoreBackend)
		}
	case BackendPostgres, BackendPgx, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=%s", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, redis, postgres, pgx or sqlite)", c.StoreBackend)
	}

	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE %q is not a known IANA zone: %w", c.DefaultTimezone, err)
	}
	if c.StoreMaxAttempts == 0 {
		return fmt.Errorf("STORE_MAX_ATTEMPTS must be at least 1")
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("MAX_BODY_BYTES must not be negative")
	}

	if isProduction {
		if err := validateSecret("JWT_SIGNING_KEY", c.JWTSigningKey); err != nil {
			return err
		}
		if c.StoreBackend == BackendMemory {
			log.Warn().Msg("STORE_BACKEND=memory in production: state is lost on restart and not shared between instances")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return &cfg, nil
}
