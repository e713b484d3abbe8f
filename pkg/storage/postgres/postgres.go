// Package postgres provides a PostgreSQL implementation of the storage
// contract using pgx/v5 connection pooling.
//
// Tenant restriction is a session variable (screenleads.company_id) set on
// the pooled connection held by a request. Tenant-scoped queries filter on
// that variable, and row-level security policies apply the same filter for
// roles subject to RLS.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/storage"
)

// restrictionSetting is the session variable holding the active tenant id.
const restrictionSetting = "screenleads.company_id"

// Store is a PostgreSQL-backed implementation of storage.UserStore,
// storage.TenantReader, storage.SessionPool and auth.IdentityLoader.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config
}

// Compile-time interface checks.
var (
	_ storage.UserStore    = (*Store)(nil)
	_ storage.TenantReader = (*Store)(nil)
	_ storage.SessionPool  = (*Store)(nil)
	_ auth.IdentityLoader  = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, cfg: cfg}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// LoadIdentity resolves a username to its identity.
func (s *Store) LoadIdentity(ctx context.Context, subject string) (*auth.Identity, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, auth.ErrIdentityNotFound
	}

	id := &auth.Identity{}
	err := s.pool.QueryRow(ctx,
		"SELECT username, roles, company_id FROM users WHERE username = $1",
		subject,
	).Scan(&id.Subject, &id.Roles, &id.CompanyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	return id, nil
}

// FindUserByUsername returns the stored account or storage.ErrNotFound.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var u storage.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, roles, company_id, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Roles, &u.CompanyID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// CreateUser stores a new account and assigns its ID and creation time.
func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, roles, company_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Username, u.Email, u.PasswordHash, roles, u.CompanyID).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// CreateFirstUser stores u only while the users table is empty. The table
// lock serializes concurrent first registrations.
func (s *Store) CreateFirstUser(ctx context.Context, u *storage.User) error {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO users (username, email, password_hash, roles, company_id)
			SELECT $1::text, $2::text, $3::text, $4::text[], $5::bigint
			WHERE NOT EXISTS (SELECT 1 FROM users)
			RETURNING id, created_at
		`, u.Username, u.Email, u.PasswordHash, roles, u.CompanyID).Scan(&u.ID, &u.CreatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrUsersExist
	}
	if err != nil {
		return fmt.Errorf("inserting first user: %w", err)
	}
	return nil
}

// CountUsers returns the number of stored accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// CreateCompany stores a new tenant.
func (s *Store) CreateCompany(ctx context.Context, name string) (*storage.Company, error) {
	c := &storage.Company{Name: name}
	if err := s.pool.QueryRow(ctx,
		"INSERT INTO companies (name) VALUES ($1) RETURNING id, created_at",
		name,
	).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting company: %w", err)
	}
	return c, nil
}

// CreateDevice stores a device belonging to companyID.
func (s *Store) CreateDevice(ctx context.Context, companyID int64, uuid, name string) (*storage.Device, error) {
	d := &storage.Device{UUID: uuid, Name: name, CompanyID: companyID}
	if err := s.pool.QueryRow(ctx,
		"INSERT INTO devices (uuid, name, company_id) VALUES ($1, $2, $3) RETURNING id, created_at",
		uuid, name, companyID,
	).Scan(&d.ID, &d.CreatedAt); err != nil {
		if isDuplicateKey(err) {
			return nil, storage.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("inserting device: %w", err)
	}
	return d, nil
}

// CreateAPIKey stores an API key record and assigns its ID.
func (s *Store) CreateAPIKey(ctx context.Context, k *storage.APIKey) error {
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (client_id, prefix, key_hash, live, permissions, company_id, active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, k.ClientID, k.Prefix, k.KeyHash, k.Live, perms, k.CompanyID, k.Active, k.ExpiresAt).Scan(&k.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// RevokeAPIKey marks a key as revoked.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET revoked_at = now(), active = false WHERE id = $1",
		id,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindActiveKey returns the active key of clientID with the given prefix.
// Revoked, inactive and expired keys are reported as storage.ErrNotFound.
func (s *Store) FindActiveKey(ctx context.Context, clientID, prefix string) (*storage.APIKey, error) {
	var k storage.APIKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, prefix, key_hash, live, permissions, company_id, active, expires_at, revoked_at
		FROM api_keys
		WHERE client_id = $1 AND prefix = $2
		  AND active AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > now())
	`, clientID, prefix).Scan(
		&k.ID, &k.ClientID, &k.Prefix, &k.KeyHash, &k.Live, &k.Permissions,
		&k.CompanyID, &k.Active, &k.ExpiresAt, &k.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return &k, nil
}

// restrictedTo returns the tenant predicate for column. It is true for
// every row when no restriction is active.
func restrictedTo(column string) string {
	return fmt.Sprintf(
		"(NULLIF(current_setting('%[1]s', true), '') IS NULL OR %[2]s = NULLIF(current_setting('%[1]s', true), '')::bigint)",
		restrictionSetting, column,
	)
}

// ListCompanies returns the companies visible through the session bound to ctx.
func (s *Store) ListCompanies(ctx context.Context) ([]storage.Company, error) {
	sess, err := s.sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := sess.conn.Query(ctx,
		"SELECT id, name, created_at FROM companies WHERE "+restrictedTo("id")+" ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying companies: %w", err)
	}
	companies, err := pgx.CollectRows(rows, pgx.RowToStructByPos[storage.Company])
	if err != nil {
		return nil, fmt.Errorf("scanning companies: %w", err)
	}
	return companies, nil
}

// ListDevices returns the devices visible through the session bound to ctx.
func (s *Store) ListDevices(ctx context.Context) ([]storage.Device, error) {
	sess, err := s.sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := sess.conn.Query(ctx,
		"SELECT id, uuid, name, company_id, created_at FROM devices WHERE "+restrictedTo("company_id")+" ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	devices, err := pgx.CollectRows(rows, pgx.RowToStructByPos[storage.Device])
	if err != nil {
		return nil, fmt.Errorf("scanning devices: %w", err)
	}
	return devices, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation checks for SQLSTATE 23503.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
