package spool

import "time"

// Metrics captures spool telemetry.
type Metrics interface {
	// ObserveFlushDuration records the time spent in one Flush call.
	ObserveFlushDuration(duration time.Duration)
	// AddEnqueued increments the count of enqueued records.
	AddEnqueued(count int)
	// AddDelivered increments the count of recipients the transport accepted.
	AddDelivered(count int)
	// AddFailedRecipients increments the count of recipients the transport rejected.
	AddFailedRecipients(count int)
	// AddSkipped increments the count of malformed records left in place.
	AddSkipped(count int)
	// AddRecovered increments the count of stale claims cleared.
	AddRecovered(count int)
	// AddErrors increments the count of failed enqueue, flush or recover calls.
	AddErrors(count int)
	// SetPending updates the current unclaimed record count.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveFlushDuration implements Metrics.
func (NopMetrics) ObserveFlushDuration(time.Duration) {}

// AddEnqueued implements Metrics.
func (NopMetrics) AddEnqueued(int) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddFailedRecipients implements Metrics.
func (NopMetrics) AddFailedRecipients(int) {}

// AddSkipped implements Metrics.
func (NopMetrics) AddSkipped(int) {}

// AddRecovered implements Metrics.
func (NopMetrics) AddRecovered(int) {}

// AddErrors implements Metrics.
func (NopMetrics) AddErrors(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
