// Package prommetrics implements spool.Metrics with Prometheus collectors.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/velmie/spool"
)

const defaultNamespace = "spool"

// Metrics holds the spool collectors.
type Metrics struct {
	FlushDuration    prometheus.Histogram
	Enqueued         prometheus.Counter
	Delivered        prometheus.Counter
	FailedRecipients prometheus.Counter
	Skipped          prometheus.Counter
	Recovered        prometheus.Counter
	Errors           prometheus.Counter
	Pending          prometheus.Gauge
}

var _ spool.Metrics = (*Metrics)(nil)

// New creates the collectors under namespace ("spool" when empty) and registers
// them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}

	m := &Metrics{
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent in one flush.",
			Buckets:   prometheus.DefBuckets,
		}),
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueued_total",
			Help:      "Messages written to the spool.",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_recipients_total",
			Help:      "Recipients accepted by the transport.",
		}),
		FailedRecipients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_recipients_total",
			Help:      "Recipients rejected by the transport.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Malformed records left in place by a flush.",
		}),
		Recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_total",
			Help:      "Stale claims cleared by recovery.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed enqueue, flush and recover calls.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending",
			Help:      "Unclaimed records in the spool.",
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// MustNew is like New but panics on registration errors.
func MustNew(reg prometheus.Registerer, namespace string) *Metrics {
	m, err := New(reg, namespace)
	if err != nil {
		panic(err)
	}

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FlushDuration,
		m.Enqueued,
		m.Delivered,
		m.FailedRecipients,
		m.Skipped,
		m.Recovered,
		m.Errors,
		m.Pending,
	}
}

// ObserveFlushDuration implements spool.Metrics.
func (m *Metrics) ObserveFlushDuration(duration time.Duration) {
	m.FlushDuration.Observe(duration.Seconds())
}

// AddEnqueued implements spool.Metrics.
func (m *Metrics) AddEnqueued(count int) {
	m.Enqueued.Add(float64(count))
}

// AddDelivered implements spool.Metrics.
func (m *Metrics) AddDelivered(count int) {
	m.Delivered.Add(float64(count))
}

// AddFailedRecipients implements spool.Metrics.
func (m *Metrics) AddFailedRecipients(count int) {
	m.FailedRecipients.Add(float64(count))
}

// AddSkipped implements spool.Metrics.
func (m *Metrics) AddSkipped(count int) {
	m.Skipped.Add(float64(count))
}

// AddRecovered implements spool.Metrics.
func (m *Metrics) AddRecovered(count int) {
	m.Recovered.Add(float64(count))
}

// AddErrors implements spool.Metrics.
func (m *Metrics) AddErrors(count int) {
	m.Errors.Add(float64(count))
}

// SetPending implements spool.Metrics.
func (m *Metrics) SetPending(count int) {
	m.Pending.Set(float64(count))
}
