// Package config provides unified configuration for the screenleads backend.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (SCREENLEADS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/screenleads/backend/pkg/auth/route"
)

// Config holds all configuration for the screenleads backend.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Type           string         `yaml:"type"`            // "memory" or "postgres", default: "memory"
	CleanupTimeout time.Duration  `yaml:"cleanup_timeout"` // restriction deactivation bound, default: 5s
	Postgres       PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds bearer token and route settings.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`      // base64, at least 32 decoded bytes
	JWTSecretFile string        `yaml:"jwt_secret_file"` // _file variant for jwt_secret
	TokenTTL      time.Duration `yaml:"token_ttl"`       // default: 24h
	Issuer        string        `yaml:"issuer"`
	PublicRoutes  []string      `yaml:"public_routes"` // default: route.DefaultPublicRoutes
}

// RateLimitConfig holds request budget settings.
type RateLimitConfig struct {
	// RedisAddr selects the shared Redis limiter for API keys. Empty uses
	// the in-process limiter.
	RedisAddr         string  `yaml:"redis_addr"`
	RedisPasswordFile string  `yaml:"redis_password_file"`
	RedisPassword     string  `yaml:"redis_password"`
	APIKeyTestLimit   int     `yaml:"apikey_test_limit"` // per minute, default: 100
	APIKeyLiveLimit   int     `yaml:"apikey_live_limit"` // per minute, default: 1000
	LoginRate         float64 `yaml:"login_rate"`        // per second per address, default: 1
	LoginBurst        int     `yaml:"login_burst"`       // default: 5
}

// RealtimeConfig holds websocket settings.
type RealtimeConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // default: 10s
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     1 << 20,
		},
		Storage: StorageConfig{
			Type:           "memory",
			CleanupTimeout: 5 * time.Second,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			TokenTTL:     24 * time.Hour,
			PublicRoutes: append([]string(nil), route.DefaultPublicRoutes...),
		},
		RateLimit: RateLimitConfig{
			APIKeyTestLimit: 100,
			APIKeyLiveLimit: 1000,
			LoginRate:       1,
			LoginBurst:      5,
		},
		Realtime: RealtimeConfig{
			ConnectTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
