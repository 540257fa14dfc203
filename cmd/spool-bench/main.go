// Command spool-bench measures flush throughput of a spool backend.
//
// It seeds -records messages, then drains them with -workers concurrent flush loops
// through a transport that only sleeps for -send-latency, and reports throughput and
// per-flush latency percentiles.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velmie/spool"
	"github.com/velmie/spool/cmd/internal/backend"
)

const (
	defaultRecords      = 10000
	defaultBodyBytes    = 512
	defaultWorkers      = 4
	defaultMessageLimit = 100
	defaultDrainTimeout = 5 * time.Minute
	defaultPollInterval = 10 * time.Millisecond
	percentileP50       = 0.50
	percentileP95       = 0.95
	percentileP99       = 0.99
)

var (
	errRecordsRequired = errors.New("spool-bench: records must be positive")
	errDrainTimeout    = errors.New("spool-bench: drain timed out")
)

type benchConfig struct {
	records      int
	bodyBytes    int
	workers      int
	messageLimit int
	sendLatency  time.Duration
	drainTimeout time.Duration
}

type result struct {
	Backend       string        `json:"backend"`
	Records       int           `json:"records"`
	Workers       int           `json:"workers"`
	MessageLimit  int           `json:"message_limit"`
	SeedDuration  time.Duration `json:"seed_duration"`
	DrainDuration time.Duration `json:"drain_duration"`
	Delivered     int64         `json:"delivered"`
	LostClaims    int64         `json:"lost_claims"`
	Throughput    float64       `json:"throughput_msg_per_sec"`
	FlushP50Ms    float64       `json:"flush_p50_ms"`
	FlushP95Ms    float64       `json:"flush_p95_ms"`
	FlushP99Ms    float64       `json:"flush_p99_ms"`
	FlushMaxMs    float64       `json:"flush_max_ms"`
	FlushMeanMs   float64       `json:"flush_mean_ms"`
	Flushes       int           `json:"flushes"`
}

func main() {
	if err := backend.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	var (
		store   backend.Options
		cfg     benchConfig
		jsonOut bool
	)
	store.Register(flag.CommandLine)
	flag.IntVar(&cfg.records, "records", defaultRecords, "Number of messages to seed and drain")
	flag.IntVar(&cfg.bodyBytes, "body-bytes", defaultBodyBytes, "Message body size in bytes")
	flag.IntVar(&cfg.workers, "workers", defaultWorkers, "Concurrent flush workers")
	flag.IntVar(&cfg.messageLimit, "message-limit", defaultMessageLimit, "Records fetched per flush")
	flag.DurationVar(&cfg.sendLatency, "send-latency", 0, "Simulated transport latency per message")
	flag.DurationVar(&cfg.drainTimeout, "drain-timeout", defaultDrainTimeout, "Give up draining after this long")
	flag.BoolVar(&jsonOut, "json", false, "Print JSON result")
	flag.Parse()

	if cfg.records <= 0 {
		exitErr(errRecordsRequired)
	}

	ctx := context.Background()
	s, closeStore, err := openSpool(ctx, store, cfg)
	if err != nil {
		exitErr(err)
	}
	defer func() { _ = closeStore() }()

	res, err := runBench(ctx, s, cfg)
	if err != nil {
		exitErr(err)
	}
	res.Backend = store.Backend

	if err := printResult(os.Stdout, res, jsonOut); err != nil {
		exitErr(err)
	}
}

func openSpool(ctx context.Context, opts backend.Options, cfg benchConfig) (*spool.Spool, func() error, error) {
	store, closeStore, err := backend.Open(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	s, err := spool.New(store, spool.WithMessageLimit(cfg.messageLimit))
	if err != nil {
		return nil, nil, errors.Join(err, closeStore())
	}

	return s, closeStore, nil
}

func runBench(ctx context.Context, s *spool.Spool, cfg benchConfig) (result, error) {
	res := result{Records: cfg.records, Workers: cfg.workers, MessageLimit: cfg.messageLimit}

	seedStart := time.Now()
	msg := spool.Message{
		From:    "bench@example.com",
		To:      []string{"sink@example.com"},
		Subject: "spool-bench",
		Body:    strings.Repeat("a", cfg.bodyBytes),
	}
	for i := 0; i < cfg.records; i++ {
		if _, err := s.Enqueue(ctx, msg); err != nil {
			return res, fmt.Errorf("seed: %w", err)
		}
	}
	res.SeedDuration = time.Since(seedStart)

	var delivered, lost atomic.Int64
	stats := &latencyStats{}
	transport := spool.SendFunc(func(ctx context.Context, msg spool.Message) (int, []string, error) {
		if cfg.sendLatency > 0 {
			timer := time.NewTimer(cfg.sendLatency)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-timer.C:
			}
		}

		return len(msg.Recipients()), nil, nil
	})

	drainCtx, cancel := context.WithTimeout(ctx, cfg.drainTimeout)
	defer cancel()

	drainStart := time.Now()
	var wg sync.WaitGroup
	errCh := make(chan error, cfg.workers)
	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for delivered.Load() < int64(cfg.records) {
				start := time.Now()
				flush, err := s.Flush(drainCtx, transport)
				if err != nil {
					errCh <- err
					return
				}
				if flush.Processed > 0 {
					stats.Record(time.Since(start))
				}
				delivered.Add(int64(flush.Delivered))
				lost.Add(int64(flush.LostClaims))
				if flush.Processed == 0 {
					time.Sleep(defaultPollInterval)
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	res.DrainDuration = time.Since(drainStart)

	if err := <-errCh; err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s: %d of %d delivered", errDrainTimeout, cfg.drainTimeout, delivered.Load(), cfg.records)
		}

		return res, fmt.Errorf("flush: %w", err)
	}

	res.Delivered = delivered.Load()
	res.LostClaims = lost.Load()
	if res.DrainDuration > 0 {
		res.Throughput = float64(res.Delivered) / res.DrainDuration.Seconds()
	}
	snapshot := stats.Snapshot()
	res.FlushP50Ms = msFloat(snapshot.P50)
	res.FlushP95Ms = msFloat(snapshot.P95)
	res.FlushP99Ms = msFloat(snapshot.P99)
	res.FlushMaxMs = msFloat(snapshot.Max)
	res.FlushMeanMs = msFloat(snapshot.Mean)
	res.Flushes = snapshot.Count

	return res, nil
}

func printResult(w io.Writer, res result, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(res)
	}

	_, err := fmt.Fprintf(w,
		"backend=%s records=%d workers=%d limit=%d seed=%s drain=%s delivered=%d lost_claims=%d throughput=%.1f/s "+
			"flush_p50=%.2fms flush_p95=%.2fms flush_p99=%.2fms flush_max=%.2fms flushes=%d\n",
		res.Backend, res.Records, res.Workers, res.MessageLimit, res.SeedDuration, res.DrainDuration,
		res.Delivered, res.LostClaims, res.Throughput,
		res.FlushP50Ms, res.FlushP95Ms, res.FlushP99Ms, res.FlushMaxMs, res.Flushes,
	)

	return err
}

type latencyStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (l *latencyStats) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.samples = append(l.samples, d)
	l.mu.Unlock()
}

func (l *latencyStats) Snapshot() latencySnapshot {
	l.mu.Lock()
	samples := append([]time.Duration(nil), l.samples...)
	l.mu.Unlock()
	if len(samples) == 0 {
		return latencySnapshot{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return latencySnapshot{
		P50:   percentile(samples, percentileP50),
		P95:   percentile(samples, percentileP95),
		P99:   percentile(samples, percentileP99),
		Max:   samples[len(samples)-1],
		Mean:  meanDuration(samples),
		Count: len(samples),
	}
}

type latencySnapshot struct {
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}

	return samples[idx]
}

func meanDuration(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}

	return sum / time.Duration(len(samples))
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
