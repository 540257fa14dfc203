package spool

import "context"

// Transport delivers messages on behalf of the spool.
type Transport interface {
	// IsStarted reports whether Start has completed.
	IsStarted() bool
	// Start prepares the transport, e.g. dials a server.
	Start(ctx context.Context) error
	// Send delivers msg and returns the number of recipients that accepted it plus
	// the addresses that were rejected. A rejected recipient is not an error.
	Send(ctx context.Context, msg Message) (delivered int, failed []string, err error)
}

// SendFunc adapts a function to a Transport that is always started.
type SendFunc func(ctx context.Context, msg Message) (int, []string, error)

// IsStarted implements Transport.
func (SendFunc) IsStarted() bool {
	return true
}

// Start implements Transport.
func (SendFunc) Start(context.Context) error {
	return nil
}

// Send implements Transport.
func (fn SendFunc) Send(ctx context.Context, msg Message) (int, []string, error) {
	return fn(ctx, msg)
}
