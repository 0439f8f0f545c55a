package postgres

import "time"

// Config holds connection pool settings for the turn store.
type Config struct {
	// DSN is a libpq-style connection string or URL.
	DSN string

	// MaxConns caps the pool (default: 25).
	MaxConns int32

	// MinConns is kept small since turns are written once per answer (default: 2).
	MinConns int32

	// MaxConnLifetime recycles connections (default: 30 minutes).
	MaxConnLifetime time.Duration

	// HealthCheckPeriod is how often idle connections are probed (default: 1 minute).
	HealthCheckPeriod time.Duration

	// MigrateOnStart applies pending migrations in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns <= 0 {
		c.MaxConns = 25
	}
	if c.MinConns <= 0 {
		c.MinConns = 2
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = time.Minute
	}
}
