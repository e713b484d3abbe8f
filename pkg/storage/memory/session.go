package memory

import (
	"context"
	"fmt"

	"github.com/screenleads/backend/pkg/storage"
)

// session is an in-memory storage.Session.
type session struct {
	store     *Store
	companyID int64
	active    bool
	released  bool
}

// PoolStats reports session pool counters.
type PoolStats struct {
	Idle      int
	Created   int
	Discarded int
}

// Acquire returns an idle session or creates a new one.
func (s *Store) Acquire(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquiring session: %w", err)
	}

	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	if n := len(s.idle); n > 0 {
		sess := s.idle[n-1]
		s.idle = s.idle[:n-1]
		sess.released = false
		return sess, nil
	}
	s.created++
	return &session{store: s}, nil
}

// Stats returns a snapshot of the pool counters.
func (s *Store) Stats() PoolStats {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return PoolStats{Idle: len(s.idle), Created: s.created, Discarded: s.discarded}
}

func (s *Store) sessionFrom(ctx context.Context) (*session, error) {
	bound := storage.SessionFromContext(ctx)
	if bound == nil {
		return nil, storage.ErrNoSession
	}
	sess, ok := bound.(*session)
	if !ok || sess.store != s {
		return nil, fmt.Errorf("%w: session belongs to another store", storage.ErrNoSession)
	}
	if sess.released {
		return nil, storage.ErrSessionReleased
	}
	return sess, nil
}

func (s *session) ActivateRestriction(_ context.Context, companyID int64) error {
	if s.released {
		return storage.ErrSessionReleased
	}
	s.companyID = companyID
	s.active = true
	return nil
}

func (s *session) DeactivateRestriction(_ context.Context) error {
	if s.released {
		return storage.ErrSessionReleased
	}
	s.companyID = 0
	s.active = false
	return nil
}

func (s *session) RestrictionActive(_ context.Context) (bool, error) {
	if s.released {
		return false, storage.ErrSessionReleased
	}
	return s.active, nil
}

// Release returns the session to the free list. A session that is still
// restricted is dropped.
func (s *session) Release() {
	if s.released {
		return
	}
	s.released = true

	p := s.store
	p.poolMu.Lock()
	defer p.poolMu.Unlock()

	if s.active {
		p.discarded++
		return
	}
	p.idle = append(p.idle, s)
}

func (s *session) visible(companyID int64) bool {
	return !s.active || s.companyID == companyID
}
