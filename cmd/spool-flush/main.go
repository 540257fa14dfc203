// Command spool-flush delivers spooled messages through an SMTP relay.
//
// By default it recovers stale claims, flushes once and exits, which suits cron.
// With -loop it keeps flushing with a pool of workers until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velmie/spool"
	"github.com/velmie/spool/cmd/internal/backend"
	"github.com/velmie/spool/prommetrics"
	"github.com/velmie/spool/transport/breaker"
	"github.com/velmie/spool/transport/smtp"
	"github.com/velmie/spool/zaplog"
)

const (
	exitUsage           = 2
	defaultWorkers      = 1
	defaultPollInterval = 5 * time.Second
	defaultRecoverEvery = time.Minute
	shutdownTimeout     = 5 * time.Second
	readHeaderTimeout   = 5 * time.Second
)

var errRelayRequired = errors.New("spool-flush: smtp-addr is required")

type config struct {
	store backend.Options
	smtp  smtp.Config

	messageLimit    int
	timeLimit       time.Duration
	loop            bool
	workers         int
	pollInterval    time.Duration
	recoverEvery    time.Duration
	recoverTimeout  time.Duration
	pendingInterval time.Duration
	breakerFailures uint
	breakerTimeout  time.Duration
	metricsAddr     string
	verbose         bool
}

func main() {
	if err := backend.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	var cfg config
	cfg.store.Register(flag.CommandLine)
	flag.StringVar(&cfg.smtp.Addr, "smtp-addr", backend.Env("SMTP_ADDR", ""), "SMTP relay host:port")
	flag.StringVar(&cfg.smtp.From, "smtp-from", backend.Env("SMTP_FROM", ""), "Sender used when a message has none")
	flag.StringVar(&cfg.smtp.Username, "smtp-user", backend.Env("SMTP_USER", ""), "SMTP username (enables PLAIN auth)")
	flag.StringVar(&cfg.smtp.Password, "smtp-password", backend.Env("SMTP_PASSWORD", ""), "SMTP password")
	flag.BoolVar(&cfg.smtp.StartTLS, "smtp-starttls", backend.EnvBool("SMTP_STARTTLS", false), "Require STARTTLS")
	flag.IntVar(&cfg.messageLimit, "message-limit", 0, "Max records per flush (0 is unbounded)")
	flag.DurationVar(&cfg.timeLimit, "time-limit", 0, "Stop a flush after this long (0 is unbounded)")
	flag.BoolVar(&cfg.loop, "loop", false, "Keep flushing until interrupted")
	flag.IntVar(&cfg.workers, "workers", defaultWorkers, "Concurrent flush workers (loop mode)")
	flag.DurationVar(&cfg.pollInterval, "poll-interval", defaultPollInterval, "Delay after an empty or failed flush (loop mode)")
	flag.DurationVar(&cfg.recoverEvery, "recover-every", defaultRecoverEvery, "Recovery interval, 0 disables recovery")
	flag.DurationVar(&cfg.recoverTimeout, "recover-timeout", spool.DefaultRecoverTimeout, "Claim age treated as abandoned")
	flag.DurationVar(&cfg.pendingInterval, "pending-interval", 0, "Pending gauge sampling interval (0 disables)")
	flag.UintVar(&cfg.breakerFailures, "breaker-failures", 5, "Consecutive send errors that open the circuit")
	flag.DurationVar(&cfg.breakerTimeout, "breaker-timeout", 30*time.Second, "How long the circuit stays open")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", backend.Env("METRICS_ADDR", ""), "Expose Prometheus metrics on this address")
	flag.BoolVar(&cfg.verbose, "verbose", backend.EnvBool("VERBOSE", false), "Enable debug logging")
	flag.Parse()

	if cfg.smtp.Addr == "" {
		fmt.Fprintln(os.Stderr, errRelayRequired)
		flag.Usage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	logger, syncLogger, err := zaplog.NewProduction(cfg.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = syncLogger() }()

	store, closeStore, err := backend.Open(ctx, cfg.store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store failed", "err", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := prommetrics.New(registry, "")
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	s, err := spool.New(store,
		spool.WithMessageLimit(cfg.messageLimit),
		spool.WithTimeLimit(cfg.timeLimit),
		spool.WithLogger(logger),
		spool.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("init spool: %w", err)
	}

	relay, err := smtp.New(cfg.smtp)
	if err != nil {
		return fmt.Errorf("init smtp: %w", err)
	}
	defer func() {
		if err := relay.Stop(); err != nil {
			logger.Warn("smtp quit failed", "err", err)
		}
	}()

	transport, err := breaker.New(relay, breaker.Config{
		Name:                "smtp",
		ConsecutiveFailures: uint32(cfg.breakerFailures),
		Timeout:             cfg.breakerTimeout,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("init breaker: %w", err)
	}

	opts := []spool.RunnerOption{
		spool.WithWorkers(cfg.workers),
		spool.WithPollInterval(cfg.pollInterval),
		spool.WithPendingInterval(cfg.pendingInterval),
	}
	if cfg.recoverEvery > 0 {
		opts = append(opts, spool.WithRecovery(cfg.recoverEvery, cfg.recoverTimeout))
	}
	runner, err := spool.NewRunner(s, transport, opts...)
	if err != nil {
		return fmt.Errorf("init runner: %w", err)
	}

	if cfg.metricsAddr != "" {
		serveMetrics(ctx, cfg.metricsAddr, registry, logger)
	}

	if !cfg.loop {
		result, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		logger.Info("flush done",
			"delivered", result.Delivered,
			"processed", result.Processed,
			"failed_recipients", result.FailedRecipients,
			"skipped", result.Skipped,
			"timed_out", result.TimedOut,
		)

		return nil
	}

	logger.Info("spool-flush started", "backend", cfg.store.Backend, "workers", cfg.workers)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}

	return nil
}

func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger spool.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
