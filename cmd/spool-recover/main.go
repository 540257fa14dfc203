// Command spool-recover resets spool records whose claim is older than a timeout,
// so deliveries abandoned by a crashed flush become eligible again.
//
// It wraps spool.Recoverer for cron jobs and sidecars. Stores that support locking
// (mysql, postgres, redis) let only one instance sweep at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/velmie/spool"
	"github.com/velmie/spool/cmd/internal/backend"
	"github.com/velmie/spool/zaplog"
)

const exitUsage = 2

func main() {
	if err := backend.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	var (
		store      backend.Options
		timeout    time.Duration
		checkEvery time.Duration
		lockName   string
		once       bool
		verbose    bool
	)

	store.Register(flag.CommandLine)
	flag.DurationVar(&timeout, "timeout", backend.EnvDuration("RECOVER_TIMEOUT", spool.DefaultRecoverTimeout), "Claim age treated as abandoned")
	flag.DurationVar(&checkEvery, "check-every", time.Minute, "How often to run recovery")
	flag.StringVar(&lockName, "lock-name", "", "Lock name (optional)")
	flag.BoolVar(&once, "once", false, "Run once and exit")
	flag.BoolVar(&verbose, "verbose", backend.EnvBool("VERBOSE", false), "Enable debug logging")
	flag.Parse()

	if timeout < 0 {
		fmt.Fprintln(os.Stderr, "timeout must be non-negative")
		flag.Usage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, store, timeout, checkEvery, lockName, once, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	opts backend.Options,
	timeout, checkEvery time.Duration,
	lockName string,
	once, verbose bool,
) error {
	logger, syncLogger, err := zaplog.NewProduction(verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = syncLogger() }()

	store, closeStore, err := backend.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store failed", "err", err)
		}
	}()

	s, err := spool.New(store, spool.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init spool: %w", err)
	}
	recoverer, err := spool.NewRecoverer(s, spool.RecovererConfig{
		Timeout:    timeout,
		CheckEvery: checkEvery,
		LockName:   lockName,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init recoverer: %w", err)
	}

	if once {
		count, err := recoverer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		logger.Info("recovery done", "recovered", count)

		return nil
	}

	if err := recoverer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run recoverer: %w", err)
	}

	return nil
}
