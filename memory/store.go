// Package memory provides an in-process spool.Store, useful for tests and for
// single-process deployments that accept losing queued messages on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/velmie/spool"
)

type entry struct {
	payload   []byte
	claimedAt time.Time
}

// Store keeps records in insertion order behind a mutex.
type Store struct {
	mu      sync.Mutex
	gen     spool.IDGenerator
	order   []spool.ID
	records map[spool.ID]*entry
}

var (
	_ spool.Store          = (*Store)(nil)
	_ spool.PendingCounter = (*Store)(nil)
)

// Option configures the memory store.
type Option func(*Store)

// WithGenerator sets the ID generator.
func WithGenerator(gen spool.IDGenerator) Option {
	return func(s *Store) {
		s.gen = gen
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{records: make(map[spool.ID]*entry)}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = spool.UUIDv7Generator{}
	}

	return s
}

// Insert implements spool.Store.
func (s *Store) Insert(ctx context.Context, payload []byte) (spool.ID, error) {
	if err := ctx.Err(); err != nil {
		return spool.ID{}, spool.WrapStorage("spool memory: insert", err)
	}
	id, err := s.gen.New()
	if err != nil {
		return spool.ID{}, spool.WrapStorage("spool memory: insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = &entry{payload: clone(payload)}
	s.order = append(s.order, id)

	return id, nil
}

// FindUnclaimed implements spool.Store. The returned cursor walks a snapshot of the
// ids that were unclaimed at call time and re-checks each one lazily.
func (s *Store) FindUnclaimed(ctx context.Context, limit int) (spool.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, spool.WrapStorage("spool memory: find", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]spool.ID, 0, len(s.order))
	for _, id := range s.order {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if s.records[id].claimedAt.IsZero() {
			ids = append(ids, id)
		}
	}

	return &cursor{store: s, ids: ids}, nil
}

// Claim implements spool.Store.
func (s *Store) Claim(ctx context.Context, id spool.ID, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, spool.WrapStorage("spool memory: claim", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || !rec.claimedAt.IsZero() {
		return false, nil
	}
	rec.claimedAt = now

	return true, nil
}

// Delete implements spool.Store.
func (s *Store) Delete(ctx context.Context, id spool.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, spool.WrapStorage("spool memory: delete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}

	return true, nil
}

// RecoverStale implements spool.Store.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, spool.WrapStorage("spool memory: recover", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, rec := range s.records {
		if !rec.claimedAt.IsZero() && rec.claimedAt.Before(olderThan) {
			rec.claimedAt = time.Time{}
			count++
		}
	}

	return count, nil
}

// CountUnclaimed implements spool.PendingCounter.
func (s *Store) CountUnclaimed(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	for _, rec := range s.records {
		if rec.claimedAt.IsZero() {
			count++
		}
	}

	return count, nil
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id spool.ID) (spool.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(id)
}

// Len returns the number of stored records, claimed or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func (s *Store) get(id spool.ID) (spool.Record, bool) {
	rec, ok := s.records[id]
	if !ok {
		return spool.Record{}, false
	}

	return spool.Record{ID: id, Payload: clone(rec.payload), ClaimedAt: rec.claimedAt}, true
}

type cursor struct {
	store   *Store
	ids     []spool.ID
	current spool.Record
	err     error
}

func (c *cursor) Next(ctx context.Context) bool {
	for len(c.ids) > 0 {
		if err := ctx.Err(); err != nil {
			c.err = spool.WrapStorage("spool memory: cursor", err)
			c.ids = nil

			return false
		}
		id := c.ids[0]
		c.ids = c.ids[1:]

		c.store.mu.Lock()
		rec, ok := c.store.get(id)
		c.store.mu.Unlock()
		if !ok || rec.Claimed() {
			continue
		}
		c.current = rec

		return true
	}

	return false
}

func (c *cursor) Record() spool.Record {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(context.Context) error {
	c.ids = nil

	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
