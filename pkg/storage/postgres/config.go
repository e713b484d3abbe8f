package postgres

import "time"

// Config holds the pool settings of a Store.
type Config struct {
	// DSN is a libpq connection string or URL,
	// e.g. "postgres://screenleads:secret@db:5432/screenleads?sslmode=require".
	DSN string

	// Pool bounds. A request holds one connection for its whole lifetime,
	// so MaxConns caps concurrent tenant-scoped requests. Defaults: 25 and 2.
	MaxConns int32
	MinConns int32

	// MaxConnLifetime recycles connections after this age (default: 30m).
	MaxConnLifetime time.Duration

	// CloseTimeout bounds closing a connection discarded because its
	// restriction could not be cleared (default: 5s).
	CloseTimeout time.Duration

	// MigrateOnStart applies the embedded schema in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.MinConns <= 0 {
		c.MinConns = min(2, c.MaxConns)
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
}
