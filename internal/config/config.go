// Package config loads the application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/nutrilink/platform/internal/app/domain/request"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Requests  RequestConfig
	Listings  ListingConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int           `env:"SERVER_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS,default=*"`
}

// DatabaseConfig controls the PostgreSQL connection. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL,default="`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=10"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
}

// AuthConfig controls token issuance and registration gates.
type AuthConfig struct {
	AccessSecret    string        `env:"JWT_ACCESS_SECRET,default=dev-access-secret"`
	RefreshSecret   string        `env:"JWT_REFRESH_SECRET,default=dev-refresh-secret"`
	AccessTTL       time.Duration `env:"JWT_ACCESS_TTL,default=15m"`
	RefreshTTL      time.Duration `env:"JWT_REFRESH_TTL,default=168h"`
	AdminAccessCode string        `env:"ADMIN_ACCESS_CODE,default="`
	BcryptCost      int           `env:"BCRYPT_COST,default=10"`
}

// RequestConfig controls request lifecycle policy.
type RequestConfig struct {
	// InitialStatus is the status newly created requests start in. With
	// "approved", deliveries can be claimed without a provider approval step.
	InitialStatus string `env:"REQUEST_INITIAL_STATUS,default=pending"`
}

// ListingConfig controls the listing expiry sweeper.
type ListingConfig struct {
	ExpirySweepSchedule string `env:"LISTING_EXPIRY_SCHEDULE,default=*/5 * * * *"`
}

// RateLimitConfig controls the per-client request rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS,default=20"`
	Burst             int     `env:"RATE_LIMIT_BURST,default=40"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch request.Status(c.Requests.InitialStatus) {
	case request.StatusPending, request.StatusApproved:
	default:
		return fmt.Errorf("REQUEST_INITIAL_STATUS must be %q or %q, got %q",
			request.StatusPending, request.StatusApproved, c.Requests.InitialStatus)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	return nil
}

// InitialRequestStatus returns the configured status for new requests.
func (c *Config) InitialRequestStatus() request.Status {
	return request.Status(c.Requests.InitialStatus)
}
