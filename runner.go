package spool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultPollInterval = time.Second
	defaultWorkers      = 1
	defaultPendingCheck = 0
)

// RunnerConfig defines how a Runner schedules flushes and recovery.
type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
	// RecoverEvery enables a recovery loop when positive.
	RecoverEvery    time.Duration
	RecoverTimeout  time.Duration
	RecoverLockName string
	PendingInterval time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// RunnerOption configures Runner behavior.
type RunnerOption func(*RunnerConfig)

// WithWorkers sets the number of concurrent flush loops.
func WithWorkers(count int) RunnerOption {
	return func(c *RunnerConfig) {
		c.Workers = count
	}
}

// WithPollInterval sets the delay after a flush that found nothing to deliver or failed.
func WithPollInterval(interval time.Duration) RunnerOption {
	return func(c *RunnerConfig) {
		c.PollInterval = interval
	}
}

// WithRecovery runs a Recoverer every interval with the given claim timeout.
func WithRecovery(every, timeout time.Duration) RunnerOption {
	return func(c *RunnerConfig) {
		c.RecoverEvery = every
		c.RecoverTimeout = timeout
	}
}

// WithRecoverLockName sets the lock used to serialize recovery across processes.
func WithRecoverLockName(name string) RunnerOption {
	return func(c *RunnerConfig) {
		c.RecoverLockName = name
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) RunnerOption {
	return func(c *RunnerConfig) {
		c.PendingInterval = interval
	}
}

// Runner invokes Flush (and optionally Recover) periodically. Failed calls are
// logged and retried on the next poll, the records they touched are left for
// recovery.
type Runner struct {
	spool     *Spool
	transport Transport
	recoverer *Recoverer
	cfg       RunnerConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

// NewRunner constructs a Runner with defaults and optional settings.
func NewRunner(spool *Spool, transport Transport, opts ...RunnerOption) (*Runner, error) {
	if spool == nil {
		return nil, ErrStoreRequired
	}
	if transport == nil {
		return nil, ErrTransportRequired
	}

	var cfg RunnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	r := &Runner{spool: spool, transport: transport, cfg: cfg}
	if cfg.RecoverEvery > 0 {
		recoverer, err := NewRecoverer(spool, RecovererConfig{
			Timeout:    cfg.RecoverTimeout,
			CheckEvery: cfg.RecoverEvery,
			LockName:   cfg.RecoverLockName,
		})
		if err != nil {
			return nil, err
		}
		r.recoverer = recoverer
	}

	return r, nil
}

// Run starts the flush workers and the recovery loop and blocks until the context
// is canceled or a worker panics.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, r.cfg.Workers+1)
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		workerID := i
		r.goSafe(&wg, errCh, cancel, "worker", workerID, func() error {
			return r.runWorker(ctx)
		})
	}
	if r.recoverer != nil {
		r.goSafe(&wg, errCh, cancel, "recoverer", 0, func() error {
			return r.recoverer.Run(ctx)
		})
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// RunOnce recovers stale claims when recovery is enabled, then flushes once.
func (r *Runner) RunOnce(ctx context.Context) (FlushResult, error) {
	if r.recoverer != nil {
		if _, err := r.recoverer.Ensure(ctx); err != nil {
			return FlushResult{}, err
		}
	}

	return r.spool.Flush(ctx, r.transport)
}

func (r *Runner) goSafe(wg *sync.WaitGroup, errCh chan<- error, cancel context.CancelFunc, role string, id int, fn func() error) {
	logger := r.spool.cfg.Logger
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
				logger.Error("spool "+role+" panic", "id", id, "panic", rec)
				errCh <- err
				cancel()
			}
		}()

		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("spool "+role+" stopped", "id", id, "err", err)
			errCh <- err
			cancel()
		}
	}()
}

func (r *Runner) runWorker(ctx context.Context) error {
	logger := r.spool.cfg.Logger
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := r.spool.Flush(ctx, r.transport)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("spool flush failed", "err", err, "processed", result.Processed)
			if sleepErr := r.sleep(ctx, r.cfg.PollInterval); sleepErr != nil {
				return sleepErr
			}

			continue
		}

		if result.Processed == 0 && !result.TimedOut {
			r.maybeRecordPending(ctx)
			if sleepErr := r.sleep(ctx, r.cfg.PollInterval); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) maybeRecordPending(ctx context.Context) {
	counter, ok := r.spool.store.(PendingCounter)
	if !ok {
		return
	}
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.spool.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := counter.CountUnclaimed(ctx)
	if err != nil {
		r.spool.cfg.Logger.Warn("spool pending count failed", "err", err)

		return
	}

	r.spool.cfg.Metrics.SetPending(count)
}
