package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// startPostgres starts a PostgreSQL container and returns its DSN.
// Tests are skipped if no container runtime is available.
func startPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		if _, err := exec.LookPath("docker"); err != nil {
			t.Skip("no container runtime found, skipping integration tests")
		}
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("screenleads_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}
	return connStr
}

// setupTestDB returns a migrated Store backed by a fresh container.
func setupTestDB(t *testing.T, maxConns int32) *Store {
	t.Helper()

	store, err := New(context.Background(), Config{
		DSN:            startPostgres(t),
		MaxConns:       maxConns,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// tenants seeds two companies with two and one devices.
func tenants(t *testing.T, s *Store) (a, b *storage.Company) {
	t.Helper()
	ctx := context.Background()

	var err error
	if a, err = s.CreateCompany(ctx, "Acme"); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	if b, err = s.CreateCompany(ctx, "Globex"); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	for _, d := range []struct {
		company int64
		uuid    string
	}{
		{a.ID, "dev-a-1"},
		{a.ID, "dev-a-2"},
		{b.ID, "dev-b-1"},
	} {
		if _, err := s.CreateDevice(ctx, d.company, d.uuid, d.uuid); err != nil {
			t.Fatalf("CreateDevice(%s): %v", d.uuid, err)
		}
	}
	return a, b
}

// acquire binds a new session to a context and releases it on cleanup.
func acquire(t *testing.T, s *Store) (context.Context, storage.Session) {
	t.Helper()
	sess, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(sess.Release)
	return storage.WithSession(context.Background(), sess), sess
}

func int64Ptr(v int64) *int64 { return &v }

func TestUsers(t *testing.T) {
	s := setupTestDB(t, 5)
	ctx := context.Background()

	company, err := s.CreateCompany(ctx, "Acme")
	if err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}

	u := &storage.User{
		Username:     "alice",
		Email:        "alice@acme.test",
		PasswordHash: "hash",
		Roles:        []string{"ROLE_COMPANY_ADMIN"},
		CompanyID:    int64Ptr(company.ID),
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 || u.CreatedAt.IsZero() {
		t.Errorf("CreateUser did not assign id and created_at: %+v", u)
	}

	got, err := s.FindUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if got.Email != u.Email || got.CompanyID == nil || *got.CompanyID != company.ID {
		t.Errorf("FindUserByUsername = %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "ROLE_COMPANY_ADMIN" {
		t.Errorf("roles = %v", got.Roles)
	}

	if err := s.CreateUser(ctx, &storage.User{Username: "alice", PasswordHash: "x"}); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate CreateUser error = %v, want ErrConflict", err)
	}

	if _, err := s.FindUserByUsername(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindUserByUsername(unknown) error = %v, want ErrNotFound", err)
	}

	n, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("CountUsers = %d, want 1", n)
	}
}

func TestCreateFirstUserConcurrent(t *testing.T) {
	s := setupTestDB(t, 10)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.CreateFirstUser(ctx, &storage.User{
				Username:     fmt.Sprintf("first-%d", i),
				PasswordHash: "hash",
				Roles:        []string{auth.RoleAdmin},
			})
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, storage.ErrUsersExist):
			t.Errorf("CreateFirstUser error = %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if count, _ := s.CountUsers(ctx); count != 1 {
		t.Errorf("CountUsers = %d, want 1", count)
	}

	err := s.CreateFirstUser(ctx, &storage.User{Username: "late", PasswordHash: "hash"})
	if !errors.Is(err, storage.ErrUsersExist) {
		t.Errorf("CreateFirstUser on populated table = %v, want ErrUsersExist", err)
	}
}

func TestLoadIdentity(t *testing.T) {
	s := setupTestDB(t, 5)
	ctx := context.Background()

	company, _ := s.CreateCompany(ctx, "Acme")
	s.CreateUser(ctx, &storage.User{
		Username: "bob", PasswordHash: "x",
		Roles: []string{"ROLE_COMPANY_VIEWER"}, CompanyID: int64Ptr(company.ID),
	})
	s.CreateUser(ctx, &storage.User{
		Username: "root", PasswordHash: "x", Roles: []string{"ROLE_ADMIN"},
	})

	id, err := s.LoadIdentity(ctx, "bob")
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if id.Subject != "bob" || id.CompanyID == nil || *id.CompanyID != company.ID {
		t.Errorf("identity = %+v", id)
	}

	admin, err := s.LoadIdentity(ctx, "root")
	if err != nil {
		t.Fatalf("LoadIdentity(root): %v", err)
	}
	if admin.CompanyID != nil {
		t.Errorf("admin company = %v, want nil", *admin.CompanyID)
	}

	for _, subject := range []string{"ghost", "", "   "} {
		if _, err := s.LoadIdentity(ctx, subject); !errors.Is(err, auth.ErrIdentityNotFound) {
			t.Errorf("LoadIdentity(%q) error = %v, want ErrIdentityNotFound", subject, err)
		}
	}
}

func TestTenantRestriction(t *testing.T) {
	s := setupTestDB(t, 5)
	a, b := tenants(t, s)

	tests := []struct {
		name        string
		restrictTo  *int64
		wantDevices int
		wantCompany []int64
	}{
		{name: "unrestricted", restrictTo: nil, wantDevices: 3, wantCompany: []int64{a.ID, b.ID}},
		{name: "company a", restrictTo: int64Ptr(a.ID), wantDevices: 2, wantCompany: []int64{a.ID}},
		{name: "company b", restrictTo: int64Ptr(b.ID), wantDevices: 1, wantCompany: []int64{b.ID}},
		{name: "no access", restrictTo: int64Ptr(storage.NoAccessCompanyID), wantDevices: 0, wantCompany: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, sess := acquire(t, s)
			if tt.restrictTo != nil {
				if err := sess.ActivateRestriction(ctx, *tt.restrictTo); err != nil {
					t.Fatalf("ActivateRestriction: %v", err)
				}
				defer sess.DeactivateRestriction(ctx)
			}

			devices, err := s.ListDevices(ctx)
			if err != nil {
				t.Fatalf("ListDevices: %v", err)
			}
			if len(devices) != tt.wantDevices {
				t.Errorf("ListDevices returned %d devices, want %d", len(devices), tt.wantDevices)
			}
			if tt.restrictTo != nil {
				for _, d := range devices {
					if d.CompanyID != *tt.restrictTo {
						t.Errorf("device %s of company %d leaked into company %d", d.UUID, d.CompanyID, *tt.restrictTo)
					}
				}
			}

			companies, err := s.ListCompanies(ctx)
			if err != nil {
				t.Fatalf("ListCompanies: %v", err)
			}
			if len(companies) != len(tt.wantCompany) {
				t.Fatalf("ListCompanies = %+v, want ids %v", companies, tt.wantCompany)
			}
			for i, c := range companies {
				if c.ID != tt.wantCompany[i] {
					t.Errorf("company[%d] = %d, want %d", i, c.ID, tt.wantCompany[i])
				}
			}
		})
	}
}

func TestRestrictionLifecycle(t *testing.T) {
	s := setupTestDB(t, 5)
	a, _ := tenants(t, s)
	ctx, sess := acquire(t, s)

	active, err := sess.RestrictionActive(ctx)
	if err != nil || active {
		t.Fatalf("fresh session RestrictionActive = %v, %v; want false", active, err)
	}

	if err := sess.ActivateRestriction(ctx, a.ID); err != nil {
		t.Fatalf("ActivateRestriction: %v", err)
	}
	if active, _ := sess.RestrictionActive(ctx); !active {
		t.Error("RestrictionActive = false after activation")
	}

	if err := sess.DeactivateRestriction(ctx); err != nil {
		t.Fatalf("DeactivateRestriction: %v", err)
	}
	if active, _ := sess.RestrictionActive(ctx); active {
		t.Error("RestrictionActive = true after deactivation")
	}
	devices, _ := s.ListDevices(ctx)
	if len(devices) != 3 {
		t.Errorf("ListDevices after deactivation = %d, want 3", len(devices))
	}

	// Deactivating twice is harmless.
	if err := sess.DeactivateRestriction(ctx); err != nil {
		t.Errorf("second DeactivateRestriction: %v", err)
	}
}

func TestListWithoutSession(t *testing.T) {
	s := setupTestDB(t, 5)

	if _, err := s.ListDevices(context.Background()); !errors.Is(err, storage.ErrNoSession) {
		t.Errorf("ListDevices without session error = %v, want ErrNoSession", err)
	}
	if _, err := s.ListCompanies(context.Background()); !errors.Is(err, storage.ErrNoSession) {
		t.Errorf("ListCompanies without session error = %v, want ErrNoSession", err)
	}
}

func TestReleasedSession(t *testing.T) {
	s := setupTestDB(t, 5)
	sess, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	sess.Release()
	sess.Release()

	ctx := storage.WithSession(context.Background(), sess)
	if err := sess.ActivateRestriction(ctx, 1); !errors.Is(err, storage.ErrSessionReleased) {
		t.Errorf("ActivateRestriction after release error = %v, want ErrSessionReleased", err)
	}
	if _, err := s.ListDevices(ctx); !errors.Is(err, storage.ErrSessionReleased) {
		t.Errorf("ListDevices after release error = %v, want ErrSessionReleased", err)
	}
}

// TestDirtySessionDiscarded verifies that a connection released with its
// restriction still set never reaches another request.
func TestDirtySessionDiscarded(t *testing.T) {
	s := setupTestDB(t, 1)
	a, _ := tenants(t, s)
	ctx := context.Background()

	first, err := s.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := first.ActivateRestriction(ctx, a.ID); err != nil {
		t.Fatalf("ActivateRestriction: %v", err)
	}
	first.Release()

	acquireCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	second, err := s.Acquire(acquireCtx)
	if err != nil {
		t.Fatalf("Acquire after discard: %v", err)
	}
	defer second.Release()

	active, err := second.RestrictionActive(ctx)
	if err != nil {
		t.Fatalf("RestrictionActive: %v", err)
	}
	if active {
		t.Fatal("restriction leaked to the next session")
	}

	devices, err := s.ListDevices(storage.WithSession(ctx, second))
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 3 {
		t.Errorf("ListDevices = %d, want 3", len(devices))
	}
}

func TestCreateDeviceUnknownCompany(t *testing.T) {
	s := setupTestDB(t, 5)

	_, err := s.CreateDevice(context.Background(), 9999, "dev-x", "orphan")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("CreateDevice(unknown company) error = %v, want ErrNotFound", err)
	}
}

func TestAPIKeys(t *testing.T) {
	s := setupTestDB(t, 5)
	ctx := context.Background()
	company, _ := s.CreateCompany(ctx, "Acme")

	k := &storage.APIKey{
		ClientID:    "kiosk-1",
		Prefix:      "sk_live_abcd",
		KeyHash:     "hash",
		Live:        true,
		Permissions: []string{"devices:read"},
		CompanyID:   int64Ptr(company.ID),
		Active:      true,
	}
	if err := s.CreateAPIKey(ctx, k); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if k.ID == 0 {
		t.Error("CreateAPIKey did not assign an id")
	}

	dup := *k
	if err := s.CreateAPIKey(ctx, &dup); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate CreateAPIKey error = %v, want ErrConflict", err)
	}

	got, err := s.FindActiveKey(ctx, "kiosk-1", "sk_live_abcd")
	if err != nil {
		t.Fatalf("FindActiveKey: %v", err)
	}
	if !got.Live || got.CompanyID == nil || *got.CompanyID != company.ID || len(got.Permissions) != 1 {
		t.Errorf("FindActiveKey = %+v", got)
	}

	if _, err := s.FindActiveKey(ctx, "kiosk-2", "sk_live_abcd"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindActiveKey(other client) error = %v, want ErrNotFound", err)
	}

	past := time.Now().Add(-time.Hour)
	expired := &storage.APIKey{
		ClientID: "kiosk-1", Prefix: "sk_test_old0", KeyHash: "hash",
		Active: true, ExpiresAt: &past,
	}
	if err := s.CreateAPIKey(ctx, expired); err != nil {
		t.Fatalf("CreateAPIKey(expired): %v", err)
	}
	if _, err := s.FindActiveKey(ctx, "kiosk-1", "sk_test_old0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindActiveKey(expired) error = %v, want ErrNotFound", err)
	}

	if err := s.RevokeAPIKey(ctx, k.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := s.FindActiveKey(ctx, "kiosk-1", "sk_live_abcd"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindActiveKey(revoked) error = %v, want ErrNotFound", err)
	}
	if err := s.RevokeAPIKey(ctx, 9999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RevokeAPIKey(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := setupTestDB(t, 5)

	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := setupTestDB(t, 5)

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
