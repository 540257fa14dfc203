package mongo

import (
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/velmie/spool"
)

const (
	defaultPayloadField   = "message"
	defaultClaimedAtField = "sentOn"
)

// Config defines document layout and collection settings.
type Config struct {
	PayloadField   string
	ClaimedAtField string
	ReadPreference *readpref.ReadPref
	WriteConcern   *writeconcern.WriteConcern
	Generator      spool.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.PayloadField == "" {
		c.PayloadField = defaultPayloadField
	}
	if c.ClaimedAtField == "" {
		c.ClaimedAtField = defaultClaimedAtField
	}
	if c.Generator == nil {
		c.Generator = spool.UUIDv7Generator{}
	}

	return c
}

// Option configures the MongoDB store.
type Option func(*Config)

// WithFields sets the payload and claim time field names.
func WithFields(payload, claimedAt string) Option {
	return func(c *Config) {
		c.PayloadField = payload
		c.ClaimedAtField = claimedAt
	}
}

// WithReadPreference sets the read preference used to find unclaimed records.
func WithReadPreference(rp *readpref.ReadPref) Option {
	return func(c *Config) {
		c.ReadPreference = rp
	}
}

// WithWriteConcern sets the write concern used by every write.
func WithWriteConcern(wc *writeconcern.WriteConcern) Option {
	return func(c *Config) {
		c.WriteConcern = wc
	}
}

// WithGenerator sets the UUID generator.
func WithGenerator(gen spool.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}
