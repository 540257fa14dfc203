package spool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// FlushResult summarizes one Flush call.
type FlushResult struct {
	// Delivered sums the recipient counts returned by the transport.
	Delivered int
	// FailedRecipients collects every address the transport rejected.
	FailedRecipients []string
	// Processed counts records that were claimed, sent and deleted.
	Processed int
	// Skipped counts malformed records left in place.
	Skipped int
	// LostClaims counts records another flush claimed first.
	LostClaims int
	// TimedOut is set when the time limit stopped the flush early.
	TimedOut bool
}

// Spool queues messages in a Store and flushes them through a Transport.
// A Spool is safe for concurrent use, coordination between concurrent flushes is
// delegated to the Store's atomic claim.
type Spool struct {
	store Store
	cfg   Config

	messageLimit atomic.Int64
	timeLimit    atomic.Int64
}

// New constructs a Spool backed by store.
func New(store Store, opts ...Option) (*Spool, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &Spool{store: store, cfg: cfg}
	s.messageLimit.Store(int64(cfg.MessageLimit))
	s.timeLimit.Store(int64(cfg.TimeLimit))

	return s, nil
}

// MustNew constructs a Spool or panics on error.
func MustNew(store Store, opts ...Option) *Spool {
	s, err := New(store, opts...)
	if err != nil {
		panic(err)
	}

	return s
}

// IsStarted always reports true, the spool has no connection of its own.
func (s *Spool) IsStarted() bool {
	return true
}

// Start is a no-op, persistence is managed by the Store.
func (s *Spool) Start() {}

// Stop is a no-op, persistence is managed by the Store.
func (s *Spool) Stop() {}

// Store returns the backing store.
func (s *Spool) Store() Store {
	return s.store
}

// MessageLimit returns the maximum number of records fetched per flush, 0 is unbounded.
func (s *Spool) MessageLimit() int {
	return int(s.messageLimit.Load())
}

// SetMessageLimit changes the per flush record limit.
func (s *Spool) SetMessageLimit(limit int) error {
	if err := checkMessageLimit(limit); err != nil {
		return err
	}
	s.messageLimit.Store(int64(limit))

	return nil
}

// TimeLimit returns the per flush time budget, 0 is unbounded.
func (s *Spool) TimeLimit() time.Duration {
	return time.Duration(s.timeLimit.Load())
}

// SetTimeLimit changes the per flush time budget.
func (s *Spool) SetTimeLimit(limit time.Duration) error {
	if err := checkTimeLimit(limit); err != nil {
		return err
	}
	s.timeLimit.Store(int64(limit))

	return nil
}

// Enqueue encodes msg and stores it as a new unclaimed record.
func (s *Spool) Enqueue(ctx context.Context, msg Message) (ID, error) {
	if err := msg.Validate(); err != nil {
		s.cfg.Metrics.AddErrors(1)

		return ID{}, &Error{Op: "enqueue", Err: err}
	}
	payload, err := s.cfg.Codec.Encode(msg)
	if err != nil {
		s.cfg.Metrics.AddErrors(1)

		return ID{}, &Error{Op: "enqueue", Err: err}
	}

	id, err := s.store.Insert(ctx, payload)
	if err != nil {
		s.cfg.Metrics.AddErrors(1)

		return ID{}, &Error{Op: "enqueue", Err: err}
	}
	s.cfg.Metrics.AddEnqueued(1)
	s.cfg.Logger.Debug("spool message queued", "id", id.String(), "recipients", len(msg.Recipients()))

	return id, nil
}

// Recover clears claims older than timeout so abandoned deliveries become eligible
// again. A non-positive timeout uses DefaultRecoverTimeout. It is idempotent.
func (s *Spool) Recover(ctx context.Context, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		timeout = DefaultRecoverTimeout
	}
	cutoff := s.cfg.Clock.Now().Add(-timeout)

	count, err := s.store.RecoverStale(ctx, cutoff)
	if err != nil {
		s.cfg.Metrics.AddErrors(1)

		return 0, &Error{Op: "recover", Err: err}
	}
	if count > 0 {
		s.cfg.Metrics.AddRecovered(int(count))
		s.cfg.Logger.Info("spool recovered stale claims", "count", count, "cutoff", cutoff)
	}

	return count, nil
}

// Flush delivers up to MessageLimit unclaimed records through transport.
//
// For each record it decodes the payload, claims the record, sends it and deletes it.
// Malformed records are skipped and left untouched. A storage or transport error ends
// the call and is returned with the partial result, a record claimed at that point stays
// claimed until Recover resets it. The time limit is checked before each record, skipped
// and lost ones included, and never interrupts a send.
func (s *Spool) Flush(ctx context.Context, transport Transport) (FlushResult, error) {
	var result FlushResult
	if transport == nil {
		return result, ErrTransportRequired
	}

	start := s.cfg.Clock.Now()
	defer func() {
		s.cfg.Metrics.ObserveFlushDuration(s.cfg.Clock.Now().Sub(start))
	}()

	if !transport.IsStarted() {
		if err := transport.Start(ctx); err != nil {
			s.cfg.Metrics.AddErrors(1)

			return result, fmt.Errorf("spool: start transport: %w", err)
		}
	}

	cursor, err := s.store.FindUnclaimed(ctx, s.MessageLimit())
	if err != nil {
		s.cfg.Metrics.AddErrors(1)

		return result, err
	}

	err = s.drain(ctx, cursor, transport, start, &result)
	closeErr := cursor.Close(ctx)
	if err == nil && closeErr != nil {
		err = WrapStorage("spool: close cursor", closeErr)
	}

	s.cfg.Metrics.AddDelivered(result.Delivered)
	s.cfg.Metrics.AddFailedRecipients(len(result.FailedRecipients))
	s.cfg.Metrics.AddSkipped(result.Skipped)
	if err != nil {
		s.cfg.Metrics.AddErrors(1)

		return result, err
	}
	if result.Processed > 0 || result.Skipped > 0 {
		s.cfg.Logger.Debug(
			"spool flush done",
			"processed", result.Processed,
			"delivered", result.Delivered,
			"failed_recipients", len(result.FailedRecipients),
			"skipped", result.Skipped,
			"lost_claims", result.LostClaims,
		)
	}

	return result, nil
}

func (s *Spool) drain(ctx context.Context, cursor Cursor, transport Transport, start time.Time, result *FlushResult) error {
	timeLimit := s.TimeLimit()
	for cursor.Next(ctx) {
		if timeLimit > 0 && s.cfg.Clock.Now().Sub(start) >= timeLimit {
			result.TimedOut = true

			break
		}
		record := cursor.Record()

		msg, err := s.cfg.Codec.Decode(record.Payload)
		if err != nil {
			s.skip(ctx, record, err)
			result.Skipped++

			continue
		}

		claimed, err := s.store.Claim(ctx, record.ID, s.cfg.Clock.Now())
		if err != nil {
			return err
		}
		if !claimed {
			s.cfg.Logger.Debug("spool record claimed elsewhere", "id", record.ID.String())
			result.LostClaims++

			continue
		}

		delivered, failed, err := transport.Send(ctx, msg)
		if err != nil {
			return fmt.Errorf("spool: send %s: %w", record.ID, err)
		}
		result.Delivered += delivered
		result.FailedRecipients = append(result.FailedRecipients, failed...)

		deleted, err := s.store.Delete(ctx, record.ID)
		if err != nil {
			return err
		}
		if !deleted {
			s.cfg.Logger.Warn("spool record vanished before delete", "id", record.ID.String())
		}
		result.Processed++

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}

		return err
	}

	return ctx.Err()
}

func (s *Spool) skip(ctx context.Context, record Record, err error) {
	s.cfg.Logger.Warn("spool skipped malformed record", "id", record.ID.String(), "err", err)
	if s.cfg.SkipHandler != nil {
		s.cfg.SkipHandler(ctx, record, err)
	}
}

func checkMessageLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: message limit must be non-negative", ErrInvalidConfig)
	}

	return nil
}

func checkTimeLimit(limit time.Duration) error {
	if limit < 0 {
		return fmt.Errorf("%w: time limit must be non-negative", ErrInvalidConfig)
	}

	return nil
}
