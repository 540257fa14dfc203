package spool

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultRecoverEvery    = time.Minute
	defaultRecoverLockName = "spool:recover"
)

// RecovererConfig controls periodic recovery of stale claims.
type RecovererConfig struct {
	// Timeout is the claim age considered abandoned (0 uses DefaultRecoverTimeout).
	Timeout time.Duration
	// CheckEvery is the interval between recovery runs.
	CheckEvery time.Duration
	// LockName is the lock taken when the store implements Locker.
	LockName string
	// Logger receives warnings about recovery failures.
	Logger Logger
}

// Recoverer periodically runs Spool.Recover. When the store implements Locker only
// the process holding the lock sweeps in a given round.
type Recoverer struct {
	spool *Spool
	cfg   RecovererConfig
}

// NewRecoverer creates a Recoverer with defaults applied.
func NewRecoverer(spool *Spool, cfg RecovererConfig) (*Recoverer, error) {
	if spool == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: recover timeout must be non-negative", ErrInvalidConfig)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRecoverTimeout
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultRecoverEvery
	}
	if cfg.LockName == "" {
		cfg.LockName = defaultRecoverLockName
	}
	if cfg.Logger == nil {
		cfg.Logger = spool.cfg.Logger
	}

	return &Recoverer{spool: spool, cfg: cfg}, nil
}

// Run recovers stale claims every CheckEvery until the context is canceled.
func (r *Recoverer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := r.Ensure(ctx); err != nil {
		r.cfg.Logger.Warn("spool recovery failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Ensure(ctx); err != nil {
				r.cfg.Logger.Warn("spool recovery failed", "err", err)
			}
		}
	}
}

// Ensure executes a single recovery pass and returns the number of records reset.
func (r *Recoverer) Ensure(ctx context.Context) (int64, error) {
	locker, ok := r.spool.store.(Locker)
	if !ok {
		return r.spool.Recover(ctx, r.cfg.Timeout)
	}

	unlock, locked, err := locker.TryLock(ctx, r.cfg.LockName)
	if err != nil {
		return 0, err
	}
	if !locked {
		r.cfg.Logger.Debug("spool recovery lock held by another process", "lock", r.cfg.LockName)

		return 0, nil
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			r.cfg.Logger.Warn("spool recovery release lock failed", "err", err)
		}
	}()

	return r.spool.Recover(ctx, r.cfg.Timeout)
}
