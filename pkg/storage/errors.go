package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a record with the same unique key already exists.
	ErrConflict = errors.New("record already exists")

	// ErrUsersExist is returned by CreateFirstUser once any account exists.
	ErrUsersExist = errors.New("users already exist")

	// ErrNoSession is returned by tenant-scoped reads when no session is
	// bound to the context.
	ErrNoSession = errors.New("no data-access session bound to context")

	// ErrSessionReleased is returned when a released session is used again.
	ErrSessionReleased = errors.New("session already released")
)
