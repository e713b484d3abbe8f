package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/storage"
)

// session is one pooled connection held for a request.
type session struct {
	store *Store
	conn  *pgxpool.Conn

	// dirty is set from the moment activation is attempted until a
	// deactivation succeeds. A dirty connection is closed on release.
	dirty    bool
	released bool
}

// Acquire takes a connection from the pool.
func (s *Store) Acquire(ctx context.Context) (storage.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return &session{store: s, conn: conn}, nil
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

func (s *session) ActivateRestriction(ctx context.Context, companyID int64) error {
	if s.released {
		return storage.ErrSessionReleased
	}
	s.dirty = true
	if _, err := s.conn.Exec(ctx,
		"SELECT set_config($1, $2, false)",
		restrictionSetting, strconv.FormatInt(companyID, 10),
	); err != nil {
		return fmt.Errorf("activating restriction: %w", err)
	}
	debug.Log("storage", "restriction activated", "company_id", companyID)
	return nil
}

func (s *session) DeactivateRestriction(ctx context.Context) error {
	if s.released {
		return storage.ErrSessionReleased
	}
	if !s.dirty {
		return nil
	}
	if _, err := s.conn.Exec(ctx,
		"SELECT set_config($1, '', false)",
		restrictionSetting,
	); err != nil {
		return fmt.Errorf("deactivating restriction: %w", err)
	}
	s.dirty = false
	debug.Log("storage", "restriction deactivated")
	return nil
}

func (s *session) RestrictionActive(ctx context.Context) (bool, error) {
	if s.released {
		return false, storage.ErrSessionReleased
	}
	var value string
	if err := s.conn.QueryRow(ctx,
		"SELECT COALESCE(current_setting($1, true), '')",
		restrictionSetting,
	).Scan(&value); err != nil {
		return false, fmt.Errorf("reading restriction: %w", err)
	}
	return value != "", nil
}

// Release returns the connection to the pool, or closes it when the
// restriction may still be set on it.
func (s *session) Release() {
	if s.released {
		return
	}
	s.released = true

	if !s.dirty {
		s.conn.Release()
		return
	}

	raw := s.conn.Hijack()
	ctx, cancel := context.WithTimeout(context.Background(), s.store.cfg.CloseTimeout)
	defer cancel()
	if err := raw.Close(ctx); err != nil {
		slog.Warn("closing restricted connection", "error", err)
	}
	debug.Log("storage", "discarded connection with active restriction")
}
