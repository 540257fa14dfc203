package sqlstore

import "github.com/velmie/spool"

const (
	defaultTable           = "spool"
	defaultIDColumn        = "id"
	defaultPayloadColumn   = "payload"
	defaultClaimedAtColumn = "claimed_at"
)

// Config defines table layout and id generation for a SQL store.
type Config struct {
	Table           string
	IDColumn        string
	PayloadColumn   string
	ClaimedAtColumn string
	Generator       spool.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.IDColumn == "" {
		c.IDColumn = defaultIDColumn
	}
	if c.PayloadColumn == "" {
		c.PayloadColumn = defaultPayloadColumn
	}
	if c.ClaimedAtColumn == "" {
		c.ClaimedAtColumn = defaultClaimedAtColumn
	}
	if c.Generator == nil {
		c.Generator = spool.UUIDv7Generator{}
	}

	return c
}

// Option configures a SQL store.
type Option func(*Config)

// WithTable sets the spool table name. Use schema.table for a non-default schema.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithColumns sets the primary key, payload and claim time column names.
// Empty names keep their defaults.
func WithColumns(id, payload, claimedAt string) Option {
	return func(c *Config) {
		c.IDColumn = id
		c.PayloadColumn = payload
		c.ClaimedAtColumn = claimedAt
	}
}

// WithGenerator sets the ID generator.
func WithGenerator(gen spool.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}

// ResolveNames applies opts over the defaults and validates the resulting identifiers.
func ResolveNames(opts ...Option) (Names, error) {
	return buildConfig(opts).names()
}

func buildConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}
