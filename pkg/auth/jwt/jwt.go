// Package jwt issues and verifies the HS256-signed bearer tokens used by
// screenleads.
//
// Tokens carry the standard sub, iat and exp claims plus a "roles" array.
// Verification rejects every algorithm other than HS256, requires an
// expiry and applies no clock leeway.
package jwt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/debug"
)

// MinKeyLength is the minimum decoded secret length in bytes.
const MinKeyLength = 32

// ErrWeakSecret is returned when the signing secret is missing, not valid
// base64 or shorter than MinKeyLength.
var ErrWeakSecret = errors.New("jwt secret must be base64 encoding of at least 32 bytes")

// Config holds the token service configuration.
type Config struct {
	// Secret is the base64-encoded HMAC signing key.
	Secret string

	// TTL is the lifetime of issued tokens. Default: 24 hours.
	TTL time.Duration

	// Issuer, when set, is written to and required in the iss claim.
	Issuer string

	// RolesClaim is the claim carrying role names. Default: "roles".
	RolesClaim string

	// Now is the clock used for issuing and verifying. Default: time.Now.
	Now func() time.Time
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.RolesClaim == "" {
		c.RolesClaim = "roles"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Service signs and verifies tokens. It is immutable after construction
// and safe for concurrent use.
type Service struct {
	config Config
	key    []byte
}

var _ auth.CredentialVerifier = (*Service)(nil)

// New creates a token service. The secret is decoded once here.
func New(cfg Config) (*Service, error) {
	cfg.applyDefaults()

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeakSecret, err)
	}
	if len(key) < MinKeyLength {
		return nil, ErrWeakSecret
	}
	return &Service{config: cfg, key: key}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Service) TTL() time.Duration {
	return s.config.TTL
}

// Issue signs a token for the identity and returns it with its expiry.
func (s *Service) Issue(id *auth.Identity) (string, time.Time, error) {
	if id == nil || id.Subject == "" {
		return "", time.Time{}, errors.New("cannot issue token without subject")
	}

	now := s.config.Now()
	exp := now.Add(s.config.TTL)

	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := jwtlib.MapClaims{
		"sub":               id.Subject,
		"iat":               jwtlib.NewNumericDate(now),
		"exp":               jwtlib.NewNumericDate(exp),
		s.config.RolesClaim: roles,
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the token's signature, algorithm and expiry and returns its
// claims. Every failure wraps auth.ErrInvalidCredential.
func (s *Service) Verify(_ context.Context, token string) (auth.Claims, error) {
	if token == "" {
		return auth.Claims{}, fmt.Errorf("%w: empty token", auth.ErrInvalidCredential)
	}

	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, s.parserOptions()...)
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		return auth.Claims{}, fmt.Errorf("%w: %w", auth.ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return auth.Claims{}, fmt.Errorf("%w: invalid claims", auth.ErrInvalidCredential)
	}

	subject := claimString(claims, "sub")
	if subject == "" {
		return auth.Claims{}, fmt.Errorf("%w: missing sub claim", auth.ErrInvalidCredential)
	}

	out := auth.Claims{
		Subject: subject,
		Roles:   extractRoles(claims, s.config.RolesClaim),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}

// parserOptions builds JWT parser options based on the configuration.
func (s *Service) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.config.Now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.config.Issuer))
	}
	return opts
}

// claimString extracts a string value from JWT claims.
// Returns empty string if the claim is missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractRoles reads the roles claim, which is either a JSON array or a
// space-separated string.
func extractRoles(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		var roles []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	default:
		return nil
	}
}
