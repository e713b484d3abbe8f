package tenant

import (
	"context"
	"errors"
	"sync"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/storage"
)

// fakeSession records every call made on it.
type fakeSession struct {
	mu            sync.Mutex
	calls         []string
	active        bool
	activatedWith int64
	activateErr   error
	deactivateErr error
	released      int

	// deactivateCtxErr is the state of the context seen by DeactivateRestriction.
	deactivateCtxErr error
}

func (s *fakeSession) ActivateRestriction(ctx context.Context, companyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "activate")
	if s.activateErr != nil {
		return s.activateErr
	}
	s.active = true
	s.activatedWith = companyID
	return nil
}

func (s *fakeSession) DeactivateRestriction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "deactivate")
	s.deactivateCtxErr = ctx.Err()
	if s.deactivateErr != nil {
		return s.deactivateErr
	}
	s.active = false
	return nil
}

func (s *fakeSession) RestrictionActive(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

func (s *fakeSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "release")
	s.released++
}

func (s *fakeSession) trace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// fakePool hands out one prepared session.
type fakePool struct {
	session    *fakeSession
	acquireErr error
	acquired   int
}

func (p *fakePool) Acquire(ctx context.Context) (storage.Session, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired++
	return p.session, nil
}

// fakeLoader serves identities from a map.
type fakeLoader struct {
	identities map[string]*auth.Identity
	err        error
}

func (l *fakeLoader) LoadIdentity(ctx context.Context, subject string) (*auth.Identity, error) {
	if l.err != nil {
		return nil, l.err
	}
	if id, ok := l.identities[subject]; ok {
		return id, nil
	}
	return nil, auth.ErrIdentityNotFound
}

var errStorage = errors.New("storage offline")

func int64Ptr(v int64) *int64 { return &v }
