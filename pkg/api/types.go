package api

import "time"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email,omitempty"`
	CompanyID *int64 `json:"companyId,omitempty"`
}

// TokenResponse carries a freshly issued access token.
type TokenResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        UserResponse `json:"user"`
}

// UserResponse describes an account without its credentials.
type UserResponse struct {
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles"`
	CompanyID *int64   `json:"companyId,omitempty"`
}

// ListResponse wraps a page of tenant-scoped records.
type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

// NewListResponse wraps items, never returning a null data array.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Object: "list", Data: items}
}

// Validate checks the login body.
func (r *LoginRequest) Validate() *APIError {
	if r.Username == "" {
		return NewInvalidRequestError("username", "username is required")
	}
	if r.Password == "" {
		return NewInvalidRequestError("password", "password is required")
	}
	return nil
}

// Validate checks the registration body.
func (r *RegisterRequest) Validate() *APIError {
	if r.Username == "" {
		return NewInvalidRequestError("username", "username is required")
	}
	if len(r.Password) < 8 {
		return NewInvalidRequestError("password", "password must be at least 8 characters")
	}
	if r.CompanyID != nil && *r.CompanyID <= 0 {
		return NewInvalidRequestError("companyId", "companyId must be positive")
	}
	return nil
}
