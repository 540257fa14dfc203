// Package breaker wraps a spool.Transport with a github.com/sony/gobreaker circuit
// breaker so a failing relay is not hammered by every flush.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/velmie/spool"
)

const (
	defaultName                = "spool-transport"
	defaultConsecutiveFailures = 5
	defaultOpenTimeout         = 30 * time.Second
)

// ErrOpen is returned by Send while the circuit rejects calls.
var ErrOpen = errors.New("spool breaker: circuit open")

// Config controls when the circuit trips and how it recovers.
type Config struct {
	// Name identifies the breaker in logs.
	Name string
	// ConsecutiveFailures trips the circuit after this many send errors in a row.
	ConsecutiveFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counters periodically, 0 never clears them.
	Interval time.Duration
	// Logger receives state changes.
	Logger spool.Logger
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = defaultConsecutiveFailures
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultOpenTimeout
	}
	if c.Logger == nil {
		c.Logger = spool.NopLogger{}
	}

	return c
}

// Transport decorates another transport with a circuit breaker.
type Transport struct {
	next spool.Transport
	cb   *gobreaker.CircuitBreaker
}

var _ spool.Transport = (*Transport)(nil)

type sendResult struct {
	delivered int
	failed    []string
}

// New wraps next.
func New(next spool.Transport, cfg Config) (*Transport, error) {
	if next == nil {
		return nil, spool.ErrTransportRequired
	}
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cfg.Logger.Warn("spool transport circuit changed", "name", name, "from", from.String(), "to", to.String())
		},
		// a canceled flush says nothing about the relay's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Transport{next: next, cb: gobreaker.NewCircuitBreaker(settings)}, nil
}

// IsStarted implements spool.Transport.
func (t *Transport) IsStarted() bool {
	return t.next.IsStarted()
}

// Start implements spool.Transport. Start failures count against the circuit.
func (t *Transport) Start(ctx context.Context) error {
	_, err := t.cb.Execute(func() (any, error) {
		return nil, t.next.Start(ctx)
	})

	return t.translate(err)
}

// Send implements spool.Transport.
func (t *Transport) Send(ctx context.Context, msg spool.Message) (int, []string, error) {
	res, err := t.cb.Execute(func() (any, error) {
		delivered, failed, err := t.next.Send(ctx, msg)
		if err != nil {
			return nil, err
		}

		return sendResult{delivered: delivered, failed: failed}, nil
	})
	if err != nil {
		return 0, nil, t.translate(err)
	}
	out := res.(sendResult)

	return out.delivered, out.failed, nil
}

// State reports the circuit state.
func (t *Transport) State() gobreaker.State {
	return t.cb.State()
}

func (t *Transport) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}

	return err
}
