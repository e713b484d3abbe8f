package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/storage"
	"github.com/screenleads/backend/pkg/transport"
)

// dummyHash is compared against when the username is unknown, so that
// unknown and known accounts take the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("screenleads-dummy-password"), bcrypt.DefaultCost)

type handlers struct {
	tokens  TokenIssuer
	users   storage.UserStore
	tenants storage.TenantReader
	health  HealthChecker
	maxBody int64
}

// decode reads a JSON body into v, writing the error response itself
// when it fails.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", h.maxBody)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func (h *handlers) issue(w http.ResponseWriter, status int, u *storage.User) {
	id := userIdentity(u)
	token, expiresAt, err := h.tokens.Issue(id)
	if err != nil {
		slog.Error("issuing token", "subject", id.Subject, "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to issue token"))
		return
	}
	transport.WriteJSON(w, status, api.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        userResponse(u),
	})
}

// login handles POST /auth/login.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if apiErr := req.Validate(); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	u, err := h.users.FindUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("loading user for login", "username", req.Username, "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to verify credentials"))
		return
	}

	hash := dummyHash
	if u != nil {
		hash = []byte(u.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil || u == nil {
		slog.Warn("login failed", "username", req.Username, "remote_addr", r.RemoteAddr)
		transport.WriteAuthError(w)
		return
	}

	h.issue(w, http.StatusOK, u)
}

// register handles POST /auth/register. The first account becomes the
// administrator; later accounts are company viewers.
func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	if apiErr := req.Validate(); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hashing password", "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to register"))
		return
	}

	u := &storage.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Roles:        []string{auth.RoleCompanyViewer},
		CompanyID:    req.CompanyID,
	}
	if auth.IdentityFromContext(r.Context()).IsElevated() {
		err = h.users.CreateUser(r.Context(), u)
	} else {
		// The gate admitted a non-administrator only because the store was
		// empty; another registration may have filled it since.
		u.Roles = []string{auth.RoleAdmin}
		err = h.users.CreateFirstUser(r.Context(), u)
		if errors.Is(err, storage.ErrUsersExist) {
			auth.DenyRegistration(w, r)
			return
		}
	}

	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			transport.WriteAPIError(w, api.NewConflictError("username already taken"))
			return
		}
		slog.Error("creating user", "username", req.Username, "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to register"))
		return
	}

	slog.Info("user registered", "username", u.Username, "roles", u.Roles)
	h.issue(w, http.StatusCreated, u)
}

// me handles GET /auth/me.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	u, err := h.users.FindUserByUsername(r.Context(), id.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAuthError(w)
			return
		}
		slog.Error("loading current user", "subject", id.Subject, "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to load user"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, userResponse(u))
}

// refresh handles POST /auth/refresh.
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	u, err := h.users.FindUserByUsername(r.Context(), id.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAuthError(w)
			return
		}
		slog.Error("loading user for refresh", "subject", id.Subject, "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to refresh token"))
		return
	}
	h.issue(w, http.StatusOK, u)
}

func (h *handlers) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.tenants.ListCompanies(r.Context())
	if err != nil {
		slog.Error("listing companies", "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to list companies"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, api.NewListResponse(companies))
}

func (h *handlers) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.tenants.ListDevices(r.Context())
	if err != nil {
		slog.Error("listing devices", "error", err)
		transport.WriteAPIError(w, api.NewServerError("unable to list devices"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, api.NewListResponse(devices))
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) actuatorHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
			return
		}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func userIdentity(u *storage.User) *auth.Identity {
	return &auth.Identity{Subject: u.Username, Roles: u.Roles, CompanyID: u.CompanyID}
}

func userResponse(u *storage.User) api.UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return api.UserResponse{
		Username:  u.Username,
		Email:     u.Email,
		Roles:     roles,
		CompanyID: u.CompanyID,
	}
}

func apiNotFound(path string) *api.APIError {
	return api.NewNotFoundError("no route for " + path)
}

func apiMethodNotAllowed(method string) *api.APIError {
	return api.NewInvalidRequestError("method", "method "+method+" not allowed")
}
