package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/screenleads/backend/pkg/auth/jwt"
	"github.com/screenleads/backend/pkg/auth/route"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret or auth.jwt_secret_file is required"))
	} else if _, err := jwt.New(jwt.Config{Secret: c.Auth.JWTSecret}); err != nil {
		errs = append(errs, fmt.Errorf("auth.jwt_secret: %w", err))
	}

	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive, got %v", c.Auth.TokenTTL))
	}

	if _, err := route.New(c.Auth.PublicRoutes); err != nil {
		errs = append(errs, fmt.Errorf("auth.public_routes: %w", err))
	}

	if c.RateLimit.APIKeyTestLimit < 0 || c.RateLimit.APIKeyLiveLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit api key limits must not be negative"))
	}
	if c.RateLimit.LoginRate < 0 || c.RateLimit.LoginBurst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit login settings must not be negative"))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.level must be TRACE, DEBUG, INFO, WARN or ERROR, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
		// valid
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
