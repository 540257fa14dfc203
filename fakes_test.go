package spool

import (
	"context"
	"sync"
	"time"
)

type fakeRecord struct {
	id        ID
	payload   []byte
	claimedAt time.Time
}

// fakeStore keeps records in insertion order. Hooks let tests inject failures or
// simulate a competing flush.
type fakeStore struct {
	mu      sync.Mutex
	records []*fakeRecord
	next    byte

	insertErr  error
	findErr    error
	claimErr   error
	deleteErr  error
	recoverErr error

	beforeClaim func(id ID)
	findLimits  []int
	cutoffs     []time.Time
}

func (s *fakeStore) Insert(_ context.Context, payload []byte) (ID, error) {
	if s.insertErr != nil {
		return ID{}, WrapStorage("fake: insert", s.insertErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	id := ID{s.next}
	s.records = append(s.records, &fakeRecord{id: id, payload: append([]byte(nil), payload...)})

	return id, nil
}

func (s *fakeStore) FindUnclaimed(_ context.Context, limit int) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findLimits = append(s.findLimits, limit)
	if s.findErr != nil {
		return nil, WrapStorage("fake: find", s.findErr)
	}
	var out []Record
	for _, rec := range s.records {
		if limit > 0 && len(out) >= limit {
			break
		}
		if rec.claimedAt.IsZero() {
			out = append(out, Record{ID: rec.id, Payload: rec.payload})
		}
	}

	return NewSliceCursor(out), nil
}

func (s *fakeStore) Claim(_ context.Context, id ID, now time.Time) (bool, error) {
	if s.beforeClaim != nil {
		s.beforeClaim(id)
	}
	if s.claimErr != nil {
		return false, WrapStorage("fake: claim", s.claimErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.find(id)
	if rec == nil || !rec.claimedAt.IsZero() {
		return false, nil
	}
	rec.claimedAt = now

	return true, nil
}

func (s *fakeStore) Delete(_ context.Context, id ID) (bool, error) {
	if s.deleteErr != nil {
		return false, WrapStorage("fake: delete", s.deleteErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.id == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

func (s *fakeStore) RecoverStale(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cutoffs = append(s.cutoffs, olderThan)
	if s.recoverErr != nil {
		return 0, WrapStorage("fake: recover", s.recoverErr)
	}
	var count int64
	for _, rec := range s.records {
		if !rec.claimedAt.IsZero() && rec.claimedAt.Before(olderThan) {
			rec.claimedAt = time.Time{}
			count++
		}
	}

	return count, nil
}

func (s *fakeStore) find(id ID) *fakeRecord {
	for _, rec := range s.records {
		if rec.id == id {
			return rec
		}
	}

	return nil
}

func (s *fakeStore) get(id ID) (fakeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.find(id)
	if rec == nil {
		return fakeRecord{}, false
	}

	return *rec, true
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// countingStore adds PendingCounter and Locker to fakeStore.
type countingStore struct {
	*fakeStore
	pending  int
	counts   int
	lockHeld bool
	locks    []string
	unlocks  int
}

func (s *countingStore) CountUnclaimed(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++

	return s.pending, nil
}

func (s *countingStore) TryLock(_ context.Context, name string) (func(context.Context) error, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = append(s.locks, name)
	if s.lockHeld {
		return nil, false, nil
	}

	return func(context.Context) error {
		s.mu.Lock()
		s.unlocks++
		s.mu.Unlock()
		return nil
	}, true, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingTransport struct {
	started  bool
	startErr error
	sendErr  error
	perSend  int
	failed   []string
	onSend   func(msg Message)
	sent     []Message
}

func (t *recordingTransport) IsStarted() bool { return t.started }

func (t *recordingTransport) Start(context.Context) error {
	if t.startErr != nil {
		return t.startErr
	}
	t.started = true
	return nil
}

func (t *recordingTransport) Send(_ context.Context, msg Message) (int, []string, error) {
	if t.onSend != nil {
		t.onSend(msg)
	}
	if t.sendErr != nil {
		return 0, nil, t.sendErr
	}
	t.sent = append(t.sent, msg)
	return t.perSend, t.failed, nil
}

type captureMetrics struct {
	NopMetrics
	mu        sync.Mutex
	delivered int
	skipped   int
	errors    int
	enqueued  int
	recovered int
	pending   int
	flushes   int
}

func (m *captureMetrics) ObserveFlushDuration(time.Duration) {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
}

func (m *captureMetrics) AddDelivered(n int) {
	m.mu.Lock()
	m.delivered += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddSkipped(n int) {
	m.mu.Lock()
	m.skipped += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddErrors(n int) {
	m.mu.Lock()
	m.errors += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddEnqueued(n int) {
	m.mu.Lock()
	m.enqueued += n
	m.mu.Unlock()
}

func (m *captureMetrics) AddRecovered(n int) {
	m.mu.Lock()
	m.recovered += n
	m.mu.Unlock()
}

func (m *captureMetrics) SetPending(n int) {
	m.mu.Lock()
	m.pending = n
	m.mu.Unlock()
}

func mustEncode(msg Message) []byte {
	payload, err := JSONCodec{}.Encode(msg)
	if err != nil {
		panic(err)
	}
	return payload
}
