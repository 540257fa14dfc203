package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"sync"
	"time"

	"github.com/velmie/spool"
)

const defaultDialTimeout = 30 * time.Second

var (
	// ErrAddrRequired is returned when no relay address is configured.
	ErrAddrRequired = errors.New("spool smtp: relay address is required")
	// ErrNotStarted is returned by Send before Start succeeded.
	ErrNotStarted = errors.New("spool smtp: transport not started")
	// ErrNoSender is returned when neither the message nor the config has a sender.
	ErrNoSender = errors.New("spool smtp: sender is required")
	// ErrStartTLSUnsupported is returned when STARTTLS is required but not offered.
	ErrStartTLSUnsupported = errors.New("spool smtp: server does not support STARTTLS")
)

// Config describes the relay.
type Config struct {
	// Addr is the relay host:port.
	Addr string
	// From is used when a message has no sender of its own.
	From string
	// LocalName is sent with EHLO, empty keeps the net/smtp default.
	LocalName string
	// Username and Password enable PLAIN auth when Username is set.
	Username string
	Password string
	// StartTLS upgrades the connection and fails Start when the relay cannot.
	StartTLS  bool
	TLSConfig *tls.Config
	// DialTimeout bounds connection setup.
	DialTimeout time.Duration
	Clock       spool.Clock
}

// Transport is a spool.Transport over one SMTP connection.
type Transport struct {
	cfg  Config
	host string

	mu     sync.Mutex
	conn   net.Conn
	client *smtp.Client
}

var _ spool.Transport = (*Transport)(nil)

// New validates cfg and returns an unstarted transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Addr == "" {
		return nil, ErrAddrRequired
	}
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("spool smtp: invalid relay address %q: %w", cfg.Addr, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = spool.SystemClock{}
	}

	return &Transport{cfg: cfg, host: host}, nil
}

// IsStarted implements spool.Transport.
func (t *Transport) IsStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.client != nil
}

// Start implements spool.Transport. It dials the relay, upgrades to TLS and
// authenticates as configured.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr)
	if err != nil {
		return fmt.Errorf("spool smtp: dial %s: %w", t.cfg.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("spool smtp: greeting: %w", err)
	}
	if err := t.handshake(client); err != nil {
		_ = client.Close()

		return err
	}
	_ = conn.SetDeadline(time.Time{})

	t.conn = conn
	t.client = client

	return nil
}

func (t *Transport) handshake(client *smtp.Client) error {
	if t.cfg.LocalName != "" {
		if err := client.Hello(t.cfg.LocalName); err != nil {
			return fmt.Errorf("spool smtp: hello: %w", err)
		}
	}
	if t.cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return ErrStartTLSUnsupported
		}
		tlsCfg := t.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: t.host, MinVersion: tls.VersionTLS12}
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("spool smtp: starttls: %w", err)
		}
	}
	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("spool smtp: auth: %w", err)
		}
	}

	return nil
}

// Send implements spool.Transport.
//
// Recipients rejected with a protocol reply are returned as failed. When every
// recipient is rejected the transaction is reset and no data is sent. Connection
// level failures drop the connection so the next Start dials again.
func (t *Transport) Send(ctx context.Context, msg spool.Message) (int, []string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return 0, nil, ErrNotStarted
	}
	from := msg.From
	if from == "" {
		from = t.cfg.From
	}
	if from == "" {
		return 0, nil, ErrNoSender
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetDeadline(deadline)
		defer func() {
			if t.conn != nil {
				_ = t.conn.SetDeadline(time.Time{})
			}
		}()
	}

	if err := t.client.Mail(from); err != nil {
		return 0, nil, t.fail("mail from", err)
	}

	var (
		accepted int
		failed   []string
	)
	for _, rcpt := range msg.Recipients() {
		err := t.client.Rcpt(rcpt)
		if err == nil {
			accepted++

			continue
		}
		var protoErr *textproto.Error
		if !errors.As(err, &protoErr) {
			return 0, nil, t.fail("rcpt to", err)
		}
		failed = append(failed, rcpt)
	}
	if accepted == 0 {
		if err := t.client.Reset(); err != nil {
			return 0, failed, t.fail("reset", err)
		}

		return 0, failed, nil
	}

	w, err := t.client.Data()
	if err != nil {
		return 0, nil, t.fail("data", err)
	}
	if _, err := w.Write(formatMessage(msg, from, t.cfg.Clock.Now())); err != nil {
		_ = w.Close()

		return 0, nil, t.fail("write data", err)
	}
	if err := w.Close(); err != nil {
		return 0, nil, t.fail("end data", err)
	}

	return accepted, failed, nil
}

// Stop sends QUIT and closes the connection.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Quit()
	if err != nil {
		_ = t.client.Close()
	}
	t.client = nil
	t.conn = nil

	if err != nil {
		return fmt.Errorf("spool smtp: quit: %w", err)
	}

	return nil
}

// fail resets the transaction after a protocol error and drops the connection
// after any other error.
func (t *Transport) fail(step string, err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if resetErr := t.client.Reset(); resetErr == nil {
			return fmt.Errorf("spool smtp: %s: %w", step, err)
		}
	}
	_ = t.client.Close()
	t.client = nil
	t.conn = nil

	return fmt.Errorf("spool smtp: %s: %w", step, err)
}
