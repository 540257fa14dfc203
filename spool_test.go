package spool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func enqueueAll(t *testing.T, s *Spool, msgs ...Message) []ID {
	t.Helper()
	ids := make([]ID, 0, len(msgs))
	for _, msg := range msgs {
		id, err := s.Enqueue(context.Background(), msg)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	return ids
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestNewRejectsNegativeLimits(t *testing.T) {
	if _, err := New(&fakeStore{}, WithMessageLimit(-1)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for message limit, got %v", err)
	}
	if _, err := New(&fakeStore{}, WithTimeLimit(-time.Second)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for time limit, got %v", err)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustNew(nil)
}

func TestLimitsCanBeChanged(t *testing.T) {
	s := MustNew(&fakeStore{}, WithMessageLimit(5), WithTimeLimit(time.Minute))
	if s.MessageLimit() != 5 || s.TimeLimit() != time.Minute {
		t.Fatalf("unexpected limits: %d %s", s.MessageLimit(), s.TimeLimit())
	}
	if err := s.SetMessageLimit(0); err != nil {
		t.Fatalf("set message limit: %v", err)
	}
	if err := s.SetTimeLimit(2 * time.Second); err != nil {
		t.Fatalf("set time limit: %v", err)
	}
	if s.MessageLimit() != 0 || s.TimeLimit() != 2*time.Second {
		t.Fatalf("unexpected limits after set: %d %s", s.MessageLimit(), s.TimeLimit())
	}
	if err := s.SetMessageLimit(-3); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if err := s.SetTimeLimit(-time.Second); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if s.MessageLimit() != 0 || s.TimeLimit() != 2*time.Second {
		t.Fatalf("rejected values must not be applied")
	}
}

func TestSpoolLifecycleIsNoop(t *testing.T) {
	s := MustNew(&fakeStore{})
	s.Start()
	s.Stop()
	if !s.IsStarted() {
		t.Fatalf("spool must always report started")
	}
}

func TestEnqueueStoresEncodedMessage(t *testing.T) {
	store := &fakeStore{}
	metrics := &captureMetrics{}
	s := MustNew(store, WithMetrics(metrics))

	msg := Message{From: "app@example.com", To: []string{"a@example.com"}, Subject: "hi", Body: "hello1"}
	id, err := s.Enqueue(context.Background(), msg)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec, ok := store.get(id)
	if !ok {
		t.Fatalf("record %s not stored", id)
	}
	if !rec.claimedAt.IsZero() {
		t.Fatalf("new record must be unclaimed")
	}
	decoded, err := JSONCodec{}.Decode(rec.payload)
	if err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if decoded.Body != "hello1" || decoded.To[0] != "a@example.com" {
		t.Fatalf("unexpected stored message: %+v", decoded)
	}
	if metrics.enqueued != 1 {
		t.Fatalf("expected enqueued metric 1, got %d", metrics.enqueued)
	}
}

func TestEnqueueRejectsMessageWithoutRecipients(t *testing.T) {
	store := &fakeStore{}
	s := MustNew(store)

	_, err := s.Enqueue(context.Background(), Message{Body: "x", To: []string{"  "}})
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
	if store.len() != 0 {
		t.Fatalf("nothing must be stored")
	}
}

func TestEnqueueWrapsStorageError(t *testing.T) {
	cause := errors.New("disk full")
	s := MustNew(&fakeStore{insertErr: cause})

	_, err := s.Enqueue(context.Background(), Message{To: []string{"a@example.com"}})
	var spoolErr *Error
	if !errors.As(err, &spoolErr) || spoolErr.Op != "enqueue" {
		t.Fatalf("expected *Error with op enqueue, got %v", err)
	}
	if !IsStorage(err) || !errors.Is(err, cause) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}
}

func TestFlushSkipsMalformedRecords(t *testing.T) {
	store := &fakeStore{}
	metrics := &captureMetrics{}
	var skipped []ID
	s := MustNew(store, WithMetrics(metrics), WithSkipHandler(func(_ context.Context, rec Record, err error) {
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("skip handler got %v", err)
		}
		skipped = append(skipped, rec.ID)
	}))
	ctx := context.Background()

	a, _ := store.Insert(ctx, mustEncode(Message{To: []string{"a@example.com"}, Body: "hello1"}))
	b, _ := store.Insert(ctx, []byte("not a message"))
	c, _ := store.Insert(ctx, mustEncode(Message{To: []string{"c@example.com"}, Body: "hello3"}))

	transport := &recordingTransport{perSend: 1}
	result, err := s.Flush(ctx, transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Delivered != 2 || result.Processed != 2 || result.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := store.get(a); ok {
		t.Fatalf("record A must be deleted")
	}
	if _, ok := store.get(c); ok {
		t.Fatalf("record C must be deleted")
	}
	rec, ok := store.get(b)
	if !ok || !rec.claimedAt.IsZero() {
		t.Fatalf("malformed record must stay unclaimed, got %+v present=%t", rec, ok)
	}
	if len(skipped) != 1 || skipped[0] != b {
		t.Fatalf("skip handler saw %v", skipped)
	}
	if len(transport.sent) != 2 || transport.sent[0].Body != "hello1" || transport.sent[1].Body != "hello3" {
		t.Fatalf("unexpected send order: %+v", transport.sent)
	}
	if metrics.delivered != 2 || metrics.skipped != 1 || metrics.flushes != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}

	// A second flush keeps skipping the malformed record.
	result, err = s.Flush(ctx, transport)
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if result.Delivered != 0 || result.Skipped != 1 {
		t.Fatalf("unexpected second result: %+v", result)
	}
}

func TestFlushCollectsFailedRecipients(t *testing.T) {
	store := &fakeStore{}
	s := MustNew(store)
	enqueueAll(t, s,
		Message{To: []string{"a@example.com", "bad@example.com"}},
		Message{To: []string{"c@example.com", "worse@example.com"}},
	)

	transport := &recordingTransport{perSend: 1, failed: []string{"bad"}}
	result, err := s.Flush(context.Background(), transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Delivered != 2 || len(result.FailedRecipients) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if store.len() != 0 {
		t.Fatalf("partially delivered records must be deleted")
	}
}

func TestFlushHonorsMessageLimit(t *testing.T) {
	store := &fakeStore{}
	s := MustNew(store, WithMessageLimit(2))
	enqueueAll(t, s,
		Message{To: []string{"1@example.com"}},
		Message{To: []string{"2@example.com"}},
		Message{To: []string{"3@example.com"}},
	)

	transport := &recordingTransport{perSend: 1}
	result, err := s.Flush(context.Background(), transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Processed != 2 || store.len() != 1 {
		t.Fatalf("expected 2 processed and 1 left, got %+v left=%d", result, store.len())
	}
	if store.findLimits[0] != 2 {
		t.Fatalf("limit not passed to store: %v", store.findLimits)
	}
	if transport.sent[1].To[0] != "2@example.com" {
		t.Fatalf("records must be flushed in insertion order")
	}
}

func TestFlushStopsAtTimeLimit(t *testing.T) {
	store := &fakeStore{}
	clock := newManualClock()
	s := MustNew(store, WithClock(clock), WithTimeLimit(3*time.Second))
	enqueueAll(t, s,
		Message{To: []string{"1@example.com"}},
		Message{To: []string{"2@example.com"}},
		Message{To: []string{"3@example.com"}},
	)

	transport := &recordingTransport{perSend: 1, onSend: func(Message) { clock.Advance(2 * time.Second) }}
	result, err := s.Flush(context.Background(), transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Processed != 2 || !result.TimedOut {
		t.Fatalf("expected 2 processed and timed out, got %+v", result)
	}
	if store.len() != 1 {
		t.Fatalf("expected one record left, got %d", store.len())
	}
}

func TestFlushTimeLimitReachedExactly(t *testing.T) {
	store := &fakeStore{}
	clock := newManualClock()
	s := MustNew(store, WithClock(clock), WithTimeLimit(2*time.Second))
	enqueueAll(t, s, Message{To: []string{"1@example.com"}}, Message{To: []string{"2@example.com"}})

	transport := &recordingTransport{perSend: 1, onSend: func(Message) { clock.Advance(2 * time.Second) }}
	result, err := s.Flush(context.Background(), transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Processed != 1 || !result.TimedOut {
		t.Fatalf("expected stop after first record, got %+v", result)
	}
}

func TestFlushCountsLostClaims(t *testing.T) {
	store := &fakeStore{}
	clock := newManualClock()
	s := MustNew(store, WithClock(clock))
	ids := enqueueAll(t, s, Message{To: []string{"1@example.com"}}, Message{To: []string{"2@example.com"}})

	store.beforeClaim = func(id ID) {
		if id != ids[0] {
			return
		}
		store.mu.Lock()
		store.find(id).claimedAt = clock.Now()
		store.mu.Unlock()
	}

	transport := &recordingTransport{perSend: 1}
	result, err := s.Flush(context.Background(), transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.LostClaims != 1 || result.Processed != 1 || result.Delivered != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(transport.sent) != 1 || transport.sent[0].To[0] != "2@example.com" {
		t.Fatalf("record claimed elsewhere must not be sent: %+v", transport.sent)
	}
	if _, ok := store.get(ids[0]); !ok {
		t.Fatalf("record claimed elsewhere must not be deleted")
	}
}

func TestFlushAbortsOnClaimError(t *testing.T) {
	cause := errors.New("connection reset")
	store := &fakeStore{}
	metrics := &captureMetrics{}
	s := MustNew(store, WithMetrics(metrics))
	enqueueAll(t, s, Message{To: []string{"1@example.com"}})
	store.claimErr = cause

	transport := &recordingTransport{perSend: 1}
	result, err := s.Flush(context.Background(), transport)
	if !IsStorage(err) || !errors.Is(err, cause) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if result.Processed != 0 || len(transport.sent) != 0 {
		t.Fatalf("nothing must be sent: %+v", result)
	}
	if metrics.errors != 1 {
		t.Fatalf("expected one error metric, got %d", metrics.errors)
	}
}

func TestFlushAbortsOnFindError(t *testing.T) {
	store := &fakeStore{findErr: errors.New("timeout")}
	s := MustNew(store)

	if _, err := s.Flush(context.Background(), &recordingTransport{}); !IsStorage(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestFlushAbortsOnSendErrorLeavingClaim(t *testing.T) {
	cause := errors.New("421 service not available")
	store := &fakeStore{}
	s := MustNew(store)
	ids := enqueueAll(t, s, Message{To: []string{"1@example.com"}}, Message{To: []string{"2@example.com"}})

	transport := &recordingTransport{sendErr: cause}
	result, err := s.Flush(context.Background(), transport)
	if !errors.Is(err, cause) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if IsStorage(err) {
		t.Fatalf("transport error must not be reported as storage error")
	}
	if result.Processed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	first, _ := store.get(ids[0])
	if first.claimedAt.IsZero() {
		t.Fatalf("failed record must stay claimed")
	}
	second, _ := store.get(ids[1])
	if !second.claimedAt.IsZero() {
		t.Fatalf("untouched record must stay unclaimed")
	}
}

func TestFlushAbortsOnDeleteError(t *testing.T) {
	store := &fakeStore{}
	s := MustNew(store)
	ids := enqueueAll(t, s, Message{To: []string{"1@example.com"}})
	store.deleteErr = errors.New("lock wait timeout")

	result, err := s.Flush(context.Background(), &recordingTransport{perSend: 1})
	if !IsStorage(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if result.Delivered != 1 || result.Processed != 0 {
		t.Fatalf("unexpected partial result: %+v", result)
	}
	rec, ok := store.get(ids[0])
	if !ok || rec.claimedAt.IsZero() {
		t.Fatalf("record must remain claimed after delete failure")
	}
}

func TestFlushStartsTransport(t *testing.T) {
	store := &fakeStore{}
	s := MustNew(store)
	enqueueAll(t, s, Message{To: []string{"1@example.com"}})

	transport := &recordingTransport{perSend: 1}
	if _, err := s.Flush(context.Background(), transport); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !transport.started {
		t.Fatalf("transport must be started")
	}
}

func TestFlushReturnsStartError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	store := &fakeStore{}
	s := MustNew(store)
	ids := enqueueAll(t, s, Message{To: []string{"1@example.com"}})

	_, err := s.Flush(context.Background(), &recordingTransport{startErr: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected start error, got %v", err)
	}
	rec, _ := store.get(ids[0])
	if !rec.claimedAt.IsZero() {
		t.Fatalf("record must not be claimed when transport cannot start")
	}
}

func TestFlushRequiresTransport(t *testing.T) {
	s := MustNew(&fakeStore{})
	if _, err := s.Flush(context.Background(), nil); !errors.Is(err, ErrTransportRequired) {
		t.Fatalf("expected ErrTransportRequired, got %v", err)
	}
}

func TestFlushEmptyStore(t *testing.T) {
	s := MustNew(&fakeStore{})
	result, err := s.Flush(context.Background(), &recordingTransport{})
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Processed != 0 || result.Delivered != 0 || result.TimedOut {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFlushCanceledContext(t *testing.T) {
	store := &fakeStore{}
	s := MustNew(store)
	enqueueAll(t, s, Message{To: []string{"1@example.com"}}, Message{To: []string{"2@example.com"}})

	ctx, cancel := context.WithCancel(context.Background())
	transport := &recordingTransport{perSend: 1, onSend: func(Message) { cancel() }}
	result, err := s.Flush(ctx, transport)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected first record processed, got %+v", result)
	}
}

func TestRecoverResetsStaleClaims(t *testing.T) {
	store := &fakeStore{}
	clock := newManualClock()
	metrics := &captureMetrics{}
	s := MustNew(store, WithClock(clock), WithMetrics(metrics))
	ids := enqueueAll(t, s, Message{To: []string{"1@example.com"}}, Message{To: []string{"2@example.com"}})
	ctx := context.Background()

	if ok, _ := store.Claim(ctx, ids[0], clock.Now()); !ok {
		t.Fatalf("claim failed")
	}
	clock.Advance(5 * time.Minute)
	if ok, _ := store.Claim(ctx, ids[1], clock.Now()); !ok {
		t.Fatalf("claim failed")
	}

	clock.Advance(5 * time.Minute)
	count, err := s.Recover(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if count != 0 {
		t.Fatalf("claim exactly at the cutoff must stay, recovered %d", count)
	}

	clock.Advance(time.Millisecond)
	count, err = s.Recover(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recovered, got %d", count)
	}
	first, _ := store.get(ids[0])
	second, _ := store.get(ids[1])
	if !first.claimedAt.IsZero() || second.claimedAt.IsZero() {
		t.Fatalf("only the stale claim must be reset")
	}
	if metrics.recovered != 1 {
		t.Fatalf("expected recovered metric 1, got %d", metrics.recovered)
	}

	// The recovered record is eligible again.
	result, err := s.Flush(ctx, &recordingTransport{perSend: 1})
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected recovered record delivered, got %+v", result)
	}
}

func TestRecoverDefaultTimeout(t *testing.T) {
	store := &fakeStore{}
	clock := newManualClock()
	s := MustNew(store, WithClock(clock))

	if _, err := s.Recover(context.Background(), 0); err != nil {
		t.Fatalf("recover: %v", err)
	}
	want := clock.Now().Add(-DefaultRecoverTimeout)
	if len(store.cutoffs) != 1 || !store.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %v", want, store.cutoffs)
	}
}

func TestRecoverWrapsStorageError(t *testing.T) {
	s := MustNew(&fakeStore{recoverErr: errors.New("gone")})

	_, err := s.Recover(context.Background(), time.Minute)
	var spoolErr *Error
	if !errors.As(err, &spoolErr) || spoolErr.Op != "recover" || !IsStorage(err) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestClockFuncDrivesClaimTime(t *testing.T) {
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &fakeStore{}
	s := MustNew(store, WithClock(ClockFunc(func() time.Time { return at })))
	ids := enqueueAll(t, s, Message{To: []string{"1@example.com"}})

	transport := &recordingTransport{sendErr: errors.New("down")}
	if _, err := s.Flush(context.Background(), transport); err == nil {
		t.Fatalf("expected send error")
	}
	rec, _ := store.get(ids[0])
	if !rec.claimedAt.Equal(at) {
		t.Fatalf("expected claim at %s, got %s", at, rec.claimedAt)
	}
}

func TestFlushTimeLimitCoversSkippedRecords(t *testing.T) {
	store := &fakeStore{}
	clock := newManualClock()
	s := MustNew(store, WithClock(clock), WithTimeLimit(3*time.Second), WithSkipHandler(
		func(context.Context, Record, error) { clock.Advance(2 * time.Second) },
	))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.Insert(ctx, []byte("broken")); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := store.Insert(ctx, mustEncode(Message{To: []string{"1@example.com"}})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	transport := &recordingTransport{perSend: 1}
	result, err := s.Flush(ctx, transport)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if result.Skipped != 2 || result.Processed != 0 || !result.TimedOut {
		t.Fatalf("expected stop after 2 skipped records, got %+v", result)
	}
	if len(transport.sent) != 0 {
		t.Fatalf("nothing must be sent after the time limit")
	}
}
