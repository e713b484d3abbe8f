// Package apikey authenticates integration clients by API key.
//
// A key is presented in the X-API-KEY header together with the owning
// client's id in client-id (client_id is accepted too). The first twelve
// characters of the key select the stored record; the full key must match
// its bcrypt hash. Only the hash is ever stored.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/storage"
)

const (
	// LivePrefix marks keys of the production environment.
	LivePrefix = "sk_live_"

	// TestPrefix marks keys of the test environment.
	TestPrefix = "sk_test_"

	// PrefixLength is the number of leading characters stored in clear
	// and used for lookup.
	PrefixLength = 12

	minKeyLength   = 20
	randomBytes    = 32
	maxRandomChars = 40
)

var (
	// ErrInvalidFormat is returned for keys that are not sk_live_/sk_test_
	// keys of plausible length.
	ErrInvalidFormat = errors.New("invalid api key format")

	// ErrInvalidKey is returned when no active key matches.
	ErrInvalidKey = errors.New("invalid api key")
)

// Store looks up active keys.
type Store interface {
	FindActiveKey(ctx context.Context, clientID, prefix string) (*storage.APIKey, error)
}

// Generate returns a new random key for the given environment.
func Generate(live bool) (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	random := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return -1
		}
		return r
	}, base64.RawURLEncoding.EncodeToString(b))
	if len(random) > maxRandomChars {
		random = random[:maxRandomChars]
	}

	prefix := TestPrefix
	if live {
		prefix = LivePrefix
	}
	return prefix + random, nil
}

// ValidFormat reports whether key looks like a key this package issued.
func ValidFormat(key string) bool {
	if !strings.HasPrefix(key, LivePrefix) && !strings.HasPrefix(key, TestPrefix) {
		return false
	}
	return len(key) >= minKeyLength
}

// IsLive reports whether key belongs to the production environment.
func IsLive(key string) bool {
	return strings.HasPrefix(key, LivePrefix)
}

// ExtractPrefix returns the lookup prefix of key.
func ExtractPrefix(key string) (string, error) {
	if len(key) < PrefixLength {
		return "", ErrInvalidFormat
	}
	return key[:PrefixLength], nil
}

// Hash returns the bcrypt hash of key.
func Hash(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidFormat
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(h), nil
}

// Matches reports whether key matches hash.
func Matches(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// Authenticator resolves API keys to principals.
type Authenticator struct {
	Store Store
}

// Authenticate returns the principal of the key presented by clientID.
// Unknown, mismatching, revoked and expired keys yield ErrInvalidKey;
// other errors come from the store.
func (a *Authenticator) Authenticate(ctx context.Context, clientID, key string) (*auth.APIKeyPrincipal, error) {
	if clientID == "" || !ValidFormat(key) {
		return nil, ErrInvalidFormat
	}
	prefix, err := ExtractPrefix(key)
	if err != nil {
		return nil, err
	}

	rec, err := a.Store.FindActiveKey(ctx, clientID, prefix)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}
	if !Matches(key, rec.KeyHash) {
		return nil, ErrInvalidKey
	}

	return &auth.APIKeyPrincipal{
		KeyID:        rec.ID,
		ClientID:     rec.ClientID,
		Live:         rec.Live,
		Permissions:  rec.Permissions,
		CompanyScope: rec.CompanyID,
	}, nil
}
