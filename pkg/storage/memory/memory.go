// Package memory provides an in-memory implementation of the storage
// contract for tests and single-process deployments. Data is lost when the
// process restarts.
//
// Sessions are pooled on a free list so that reuse across requests behaves
// like a real connection pool: a session released while its restriction may
// still be active is discarded rather than handed out again.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/storage"
)

// Store is an in-memory implementation of storage.UserStore,
// storage.TenantReader, storage.SessionPool and auth.IdentityLoader.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*storage.User
	companies map[int64]*storage.Company
	devices   map[int64]*storage.Device
	apiKeys   map[int64]*storage.APIKey
	nextID    int64

	poolMu    sync.Mutex
	idle      []*session
	created   int
	discarded int
	now       func() time.Time
}

// Compile-time interface checks.
var (
	_ storage.UserStore    = (*Store)(nil)
	_ storage.TenantReader = (*Store)(nil)
	_ storage.SessionPool  = (*Store)(nil)
	_ auth.IdentityLoader  = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]*storage.User),
		companies: make(map[int64]*storage.Company),
		devices:   make(map[int64]*storage.Device),
		apiKeys:   make(map[int64]*storage.APIKey),
		now:       time.Now,
	}
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

// LoadIdentity resolves a username to its identity.
func (s *Store) LoadIdentity(_ context.Context, subject string) (*auth.Identity, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, auth.ErrIdentityNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[subject]
	if !ok {
		return nil, auth.ErrIdentityNotFound
	}
	return &auth.Identity{
		Subject:   u.Username,
		Roles:     slices.Clone(u.Roles),
		CompanyID: cloneID(u.CompanyID),
	}, nil
}

// FindUserByUsername returns the stored account or storage.ErrNotFound.
func (s *Store) FindUserByUsername(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	cp.CompanyID = cloneID(u.CompanyID)
	return &cp, nil
}

// CreateUser stores a new account and assigns its ID.
func (s *Store) CreateUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Username]; exists {
		return storage.ErrConflict
	}

	s.putUser(u)
	return nil
}

// putUser assigns u's ID and stores a copy. Callers hold s.mu.
func (s *Store) putUser(u *storage.User) {
	u.ID = s.allocID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	cp := *u
	cp.Roles = slices.Clone(u.Roles)
	cp.CompanyID = cloneID(u.CompanyID)
	s.users[u.Username] = &cp
}

// CreateFirstUser stores u if the store has no accounts yet.
func (s *Store) CreateFirstUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) > 0 {
		return storage.ErrUsersExist
	}
	s.putUser(u)
	return nil
}

// CountUsers returns the number of stored accounts.
func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// CreateCompany stores a new tenant.
func (s *Store) CreateCompany(_ context.Context, name string) (*storage.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &storage.Company{ID: s.allocID(), Name: name, CreatedAt: s.now()}
	s.companies[c.ID] = c
	cp := *c
	return &cp, nil
}

// CreateDevice stores a device belonging to companyID.
func (s *Store) CreateDevice(_ context.Context, companyID int64, uuid, name string) (*storage.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[companyID]; !ok {
		return nil, storage.ErrNotFound
	}
	d := &storage.Device{ID: s.allocID(), UUID: uuid, Name: name, CompanyID: companyID, CreatedAt: s.now()}
	s.devices[d.ID] = d
	cp := *d
	return &cp, nil
}

// CreateAPIKey stores an API key record and assigns its ID.
func (s *Store) CreateAPIKey(_ context.Context, k *storage.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.apiKeys {
		if existing.Prefix == k.Prefix && existing.ClientID == k.ClientID {
			return storage.ErrConflict
		}
	}
	k.ID = s.allocID()
	cp := *k
	cp.Permissions = slices.Clone(k.Permissions)
	cp.CompanyID = cloneID(k.CompanyID)
	s.apiKeys[k.ID] = &cp
	return nil
}

// RevokeAPIKey marks a key as revoked.
func (s *Store) RevokeAPIKey(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := s.now()
	k.RevokedAt = &now
	k.Active = false
	return nil
}

// FindActiveKey returns the active key of clientID with the given prefix.
// Revoked, inactive and expired keys are reported as storage.ErrNotFound.
func (s *Store) FindActiveKey(_ context.Context, clientID, prefix string) (*storage.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for _, k := range s.apiKeys {
		if k.ClientID != clientID || k.Prefix != prefix {
			continue
		}
		if !k.Active || k.RevokedAt != nil || (k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)) {
			continue
		}
		cp := *k
		cp.Permissions = slices.Clone(k.Permissions)
		cp.CompanyID = cloneID(k.CompanyID)
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

// ListCompanies returns the companies visible through the session bound to ctx.
func (s *Store) ListCompanies(ctx context.Context) ([]storage.Company, error) {
	sess, err := s.sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Company
	for _, c := range s.companies {
		if sess.visible(c.ID) {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b storage.Company) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListDevices returns the devices visible through the session bound to ctx.
func (s *Store) ListDevices(ctx context.Context) ([]storage.Device, error) {
	sess, err := s.sessionFrom(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Device
	for _, d := range s.devices {
		if sess.visible(d.CompanyID) {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b storage.Device) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
