package spool

import (
	"context"
	"time"
)

// DefaultRecoverTimeout is the claim age after which Recover treats a delivery as
// abandoned. It is chosen to exceed very slow SMTP responses.
const DefaultRecoverTimeout = 900 * time.Second

// SkipHandler is called for every record a flush leaves in place because its
// payload could not be decoded.
type SkipHandler func(ctx context.Context, record Record, err error)

// Config defines how a Spool encodes, limits and reports.
type Config struct {
	// MessageLimit caps the records fetched per flush, 0 means unbounded.
	MessageLimit int
	// TimeLimit stops a flush between records once exceeded, 0 means unbounded.
	TimeLimit   time.Duration
	Codec       Codec
	Clock       Clock
	Logger      Logger
	Metrics     Metrics
	SkipHandler SkipHandler
}

func (c Config) withDefaults() Config {
	if c.Codec == nil {
		c.Codec = JSONCodec{}
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}

	return c
}

func (c Config) validate() error {
	if err := checkMessageLimit(c.MessageLimit); err != nil {
		return err
	}

	return checkTimeLimit(c.TimeLimit)
}

// Option configures a Spool.
type Option func(*Config)

// WithMessageLimit sets the maximum number of records fetched per flush.
func WithMessageLimit(limit int) Option {
	return func(c *Config) {
		c.MessageLimit = limit
	}
}

// WithTimeLimit sets the wall time after which a flush stops taking new records.
func WithTimeLimit(limit time.Duration) Option {
	return func(c *Config) {
		c.TimeLimit = limit
	}
}

// WithCodec sets the message codec.
func WithCodec(codec Codec) Option {
	return func(c *Config) {
		c.Codec = codec
	}
}

// WithClock sets the clock used for claim timestamps, recovery cutoffs and time limits.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the spool logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the spool metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithSkipHandler registers a callback for malformed records.
func WithSkipHandler(handler SkipHandler) Option {
	return func(c *Config) {
		c.SkipHandler = handler
	}
}
