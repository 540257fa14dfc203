package postgres

import (
	"github.com/velmie/spool"
	"github.com/velmie/spool/internal/sqlstore"
)

// Option configures the PostgreSQL store.
type Option = sqlstore.Option

// WithTable sets the spool table name. Use schema.table for a non-default schema.
func WithTable(name string) Option {
	return sqlstore.WithTable(name)
}

// WithColumns sets the primary key, payload and claim time column names.
func WithColumns(id, payload, claimedAt string) Option {
	return sqlstore.WithColumns(id, payload, claimedAt)
}

// WithGenerator sets the UUID generator.
func WithGenerator(gen spool.IDGenerator) Option {
	return sqlstore.WithGenerator(gen)
}
