package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockVerifier accepts tokens listed in claims.
type mockVerifier struct {
	claims map[string]Claims
	calls  int
}

func (m *mockVerifier) Verify(_ context.Context, token string) (Claims, error) {
	m.calls++
	c, ok := m.claims[token]
	if !ok {
		return Claims{}, fmt.Errorf("%w: unknown token", ErrInvalidCredential)
	}
	return c, nil
}

// mockLoader serves identities from a map, or fails with err.
type mockLoader struct {
	identities map[string]*Identity
	err        error
	panicMsg   string
	calls      int
}

func (m *mockLoader) LoadIdentity(_ context.Context, subject string) (*Identity, error) {
	m.calls++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	if subject == "" {
		return nil, ErrIdentityNotFound
	}
	id, ok := m.identities[subject]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return id, nil
}

func int64Ptr(v int64) *int64 { return &v }

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestAuthenticator() (*BearerAuthenticator, *mockVerifier, *mockLoader) {
	v := &mockVerifier{claims: map[string]Claims{
		"good-alice": {Subject: "alice", IssuedAt: testNow.Add(-time.Minute), ExpiresAt: testNow.Add(time.Hour)},
		"good-admin": {Subject: "root", IssuedAt: testNow.Add(-time.Minute), ExpiresAt: testNow.Add(time.Hour)},
		"ghost":      {Subject: "ghost", IssuedAt: testNow.Add(-time.Minute), ExpiresAt: testNow.Add(time.Hour)},
		"stale":      {Subject: "alice", IssuedAt: testNow.Add(-2 * time.Hour), ExpiresAt: testNow.Add(-time.Hour)},
		"renamed":    {Subject: "alice", IssuedAt: testNow.Add(-time.Minute), ExpiresAt: testNow.Add(time.Hour)},
	}}
	l := &mockLoader{identities: map[string]*Identity{
		"alice": {Subject: "alice", Roles: []string{RoleCompanyViewer}, CompanyID: int64Ptr(7)},
		"root":  {Subject: "root", Roles: []string{RoleAdmin}},
	}}
	a := &BearerAuthenticator{Verifier: v, Loader: l, Now: func() time.Time { return testNow }}
	return a, v, l
}

func TestIdentityRoles(t *testing.T) {
	tests := []struct {
		name         string
		id           *Identity
		wantElevated bool
		wantTenant   int64
		wantHas      bool
	}{
		{"admin", &Identity{Subject: "a", Roles: []string{RoleAdmin}}, true, 0, false},
		{"viewer with company", &Identity{Subject: "v", Roles: []string{RoleCompanyViewer}, CompanyID: int64Ptr(5)}, false, 5, true},
		{"viewer without company", &Identity{Subject: "v", Roles: []string{RoleCompanyViewer}}, false, 0, false},
		{"nil identity", nil, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsElevated(); got != tt.wantElevated {
				t.Errorf("IsElevated() = %v, want %v", got, tt.wantElevated)
			}
			tid, ok := tt.id.TenantID()
			if ok != tt.wantHas || tid != tt.wantTenant {
				t.Errorf("TenantID() = %d, %v; want %d, %v", tid, ok, tt.wantTenant, tt.wantHas)
			}
		})
	}
}

func TestAuthenticateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr error
	}{
		{"valid", "good-alice", "alice", nil},
		{"forged", "forged", "", ErrInvalidCredential},
		{"unknown subject", "ghost", "", ErrIdentityNotFound},
		{"expired", "stale", "", ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestAuthenticator()
			id, err := a.AuthenticateToken(context.Background(), tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if id != nil {
					t.Error("identity must be nil on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.Subject != tt.wantSub {
				t.Errorf("Subject = %q, want %q", id.Subject, tt.wantSub)
			}
		})
	}
}

func TestAuthenticateToken_SubjectMismatch(t *testing.T) {
	a, _, l := newTestAuthenticator()
	l.identities["alice"] = &Identity{Subject: "alice-renamed"}

	_, err := a.AuthenticateToken(context.Background(), "renamed")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestAuthenticateToken_LoaderFailureIsUnexpected(t *testing.T) {
	a, _, l := newTestAuthenticator()
	l.err = errors.New("connection refused")

	_, err := a.AuthenticateToken(context.Background(), "good-alice")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("store failure must not be classified as a credential failure: %v", err)
	}
}

func TestAuthenticateToken_VerifierErrorWrapped(t *testing.T) {
	a, _, _ := newTestAuthenticator()
	a.Verifier = verifierFunc(func(context.Context, string) (Claims, error) {
		return Claims{}, errors.New("garbage")
	})

	_, err := a.AuthenticateToken(context.Background(), "x")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
}

type verifierFunc func(context.Context, string) (Claims, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (Claims, error) { return f(ctx, token) }

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		wantOK bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer ", "", true},
		{"bearer abc", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsAuthenticationFailure(t *testing.T) {
	if !IsAuthenticationFailure(fmt.Errorf("wrapped: %w", ErrIdentityNotFound)) {
		t.Error("ErrIdentityNotFound should be an authentication failure")
	}
	if IsAuthenticationFailure(errors.New("db down")) {
		t.Error("arbitrary errors are not authentication failures")
	}
}
