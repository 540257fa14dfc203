package spool

import (
	"context"
	"time"
)

// Store is the persistence contract the engine is written against.
//
// Implementations must make Claim an atomic conditional update: it succeeds only when
// the record exists and is not claimed yet, so concurrent flushes never both deliver it.
type Store interface {
	// Insert persists a new unclaimed record and returns its store assigned ID.
	Insert(ctx context.Context, payload []byte) (ID, error)
	// FindUnclaimed returns up to limit unclaimed records, limit <= 0 means unbounded.
	// Order is backend defined, usually insertion or key order.
	FindUnclaimed(ctx context.Context, limit int) (Cursor, error)
	// Claim marks the record as claimed at now, it reports false when the record is
	// gone or already claimed.
	Claim(ctx context.Context, id ID, now time.Time) (bool, error)
	// Delete removes the record, deleting a missing record is not an error.
	Delete(ctx context.Context, id ID) (bool, error)
	// RecoverStale clears claims older than olderThan and returns the affected count.
	RecoverStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Cursor is a lazy, finite, non-restartable sequence of records.
type Cursor interface {
	// Next advances to the next record and reports whether one is available.
	Next(ctx context.Context) bool
	// Record returns the current record.
	Record() Record
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases resources held by the cursor.
	Close(ctx context.Context) error
}

// PendingCounter provides a total count of unclaimed records.
type PendingCounter interface {
	// CountUnclaimed returns the current number of unclaimed records.
	CountUnclaimed(ctx context.Context) (int, error)
}

// Locker provides a best-effort cross-process mutex scoped to a store.
type Locker interface {
	// TryLock acquires the named lock without waiting. When ok is true the caller
	// must call unlock once done.
	TryLock(ctx context.Context, name string) (unlock func(context.Context) error, ok bool, err error)
}

type sliceCursor struct {
	records []Record
	pos     int
}

// NewSliceCursor returns a Cursor over an already materialized slice.
func NewSliceCursor(records []Record) Cursor {
	return &sliceCursor{records: records, pos: -1}
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil || c.pos+1 >= len(c.records) {
		c.pos = len(c.records)

		return false
	}
	c.pos++

	return true
}

func (c *sliceCursor) Record() Record {
	if c.pos < 0 || c.pos >= len(c.records) {
		return Record{}
	}

	return c.records[c.pos]
}

func (c *sliceCursor) Err() error {
	return nil
}

func (c *sliceCursor) Close(context.Context) error {
	c.pos = len(c.records)

	return nil
}
