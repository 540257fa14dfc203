package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/velmie/spool"
)

// ErrDBRequired is returned when a nil *sql.DB is provided.
var ErrDBRequired = errors.New("spool sql: db is required")

// Executor allows inserting within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements spool.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config
	names   Names
	queries queries
}

var (
	_ spool.Store          = (*Store)(nil)
	_ spool.PendingCounter = (*Store)(nil)
)

// New constructs a Store with validated table and column names.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if dialect.Placeholder == nil {
		dialect.Placeholder = QuestionPlaceholder
	}

	cfg := buildConfig(opts)
	names, err := cfg.names()
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		dialect: dialect,
		cfg:     cfg,
		names:   names,
		queries: newQueries(names, dialect.Placeholder),
	}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Names returns the validated identifiers.
func (s *Store) Names() Names {
	return s.names
}

// Insert implements spool.Store.
func (s *Store) Insert(ctx context.Context, payload []byte) (spool.ID, error) {
	return s.InsertWith(ctx, s.db, payload)
}

// InsertWith stores payload using exec, typically a transaction that also carries
// the business change the message belongs to.
func (s *Store) InsertWith(ctx context.Context, exec Executor, payload []byte) (spool.ID, error) {
	if exec == nil {
		return spool.ID{}, spool.WrapStorage(s.op("insert"), errors.New("executor is required"))
	}
	id, err := s.cfg.Generator.New()
	if err != nil {
		return spool.ID{}, spool.WrapStorage(s.op("generate id"), err)
	}
	if payload == nil {
		payload = []byte{}
	}

	if _, err := exec.ExecContext(ctx, s.queries.insert, id, payload); err != nil {
		return spool.ID{}, spool.WrapStorage(s.op("insert"), err)
	}

	return id, nil
}

// FindUnclaimed implements spool.Store.
func (s *Store) FindUnclaimed(ctx context.Context, limit int) (spool.Cursor, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, s.queries.selectLimited, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.queries.selectAll)
	}
	if err != nil {
		return nil, spool.WrapStorage(s.op("select"), err)
	}

	cur := &rowsCursor{rows: rows, op: s.op("scan")}
	if !s.dialect.BufferRows {
		return cur, nil
	}

	return bufferRows(ctx, cur)
}

// Claim implements spool.Store.
func (s *Store) Claim(ctx context.Context, id spool.ID, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.queries.claim, now.UnixMilli(), id)
	if err != nil {
		return false, spool.WrapStorage(s.op("claim"), err)
	}

	return s.affected(res, "claim")
}

// Delete implements spool.Store.
func (s *Store) Delete(ctx context.Context, id spool.ID) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.queries.delete, id)
	if err != nil {
		return false, spool.WrapStorage(s.op("delete"), err)
	}

	return s.affected(res, "delete")
}

// RecoverStale implements spool.Store.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.queries.recover, olderThan.UnixMilli())
	if err != nil {
		return 0, spool.WrapStorage(s.op("recover"), err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, spool.WrapStorage(s.op("recover rows"), err)
	}

	return count, nil
}

// CountUnclaimed implements spool.PendingCounter.
func (s *Store) CountUnclaimed(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, spool.WrapStorage(s.op("pending count"), err)
	}

	return count, nil
}

// Lookup reads a single record. The boolean is false when no such record exists.
func (s *Store) Lookup(ctx context.Context, id spool.ID) (spool.Record, bool, error) {
	var (
		payload   []byte
		claimedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.queries.lookup, id).Scan(&payload, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return spool.Record{}, false, nil
	}
	if err != nil {
		return spool.Record{}, false, spool.WrapStorage(s.op("lookup"), err)
	}

	rec := spool.Record{ID: id, Payload: payload}
	if claimedAt.Valid {
		rec.ClaimedAt = time.UnixMilli(claimedAt.Int64).UTC()
	}

	return rec, true, nil
}

func (s *Store) affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, spool.WrapStorage(s.op(op+" rows"), err)
	}

	return n == 1, nil
}

func (s *Store) op(name string) string {
	return "spool " + s.dialect.Name + ": " + name
}
