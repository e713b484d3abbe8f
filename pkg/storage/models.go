package storage

import (
	"context"
	"time"
)

// User is a stored account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	CompanyID    *int64
	CreatedAt    time.Time
}

// Company is a tenant.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Device is a screen registered to a company.
type Device struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	CompanyID int64     `json:"companyId"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIKey is a stored API key. Only the bcrypt hash of the secret is kept.
type APIKey struct {
	ID          int64
	ClientID    string
	Prefix      string
	KeyHash     string
	Live        bool
	Permissions []string
	CompanyID   *int64
	Active      bool
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
}

// UserStore persists accounts.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// CreateFirstUser stores u only while no account exists and returns
	// ErrUsersExist otherwise. Concurrent callers see exactly one success.
	CreateFirstUser(ctx context.Context, u *User) error
	CountUsers(ctx context.Context) (int64, error)
}

// TenantReader serves tenant-scoped listings. Implementations read through
// the Session bound to ctx and honour its restriction.
type TenantReader interface {
	ListCompanies(ctx context.Context) ([]Company, error)
	ListDevices(ctx context.Context) ([]Device, error)
}
