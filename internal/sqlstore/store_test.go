package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/velmie/spool"
)

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeExecutor struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{}, nil
}

type fixedGenerator struct {
	id    spool.ID
	calls int
}

func (g *fixedGenerator) New() (spool.ID, error) {
	g.calls++
	return g.id, nil
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil, Dialect{Name: "test"}); err != ErrDBRequired {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := New(&sql.DB{}, Dialect{Name: "test"}, WithTable("bad name")); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestInsertWithGeneratesID(t *testing.T) {
	gen := &fixedGenerator{id: spool.ID{0x01}}
	store, err := New(&sql.DB{}, Dialect{Name: "test"}, WithGenerator(gen))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exec := &fakeExecutor{}

	id, err := store.InsertWith(context.Background(), exec, []byte("payload"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != gen.id {
		t.Fatalf("expected generated id to be returned")
	}
	if gen.calls != 1 {
		t.Fatalf("expected generator to be called once")
	}
	if exec.query != "INSERT INTO spool (id, payload) VALUES (?, ?)" {
		t.Fatalf("unexpected query: %s", exec.query)
	}
	if len(exec.args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(exec.args))
	}
}

func TestInsertWithNilPayloadStoresEmpty(t *testing.T) {
	store, err := New(&sql.DB{}, Dialect{Name: "test"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exec := &fakeExecutor{}

	if _, err := store.InsertWith(context.Background(), exec, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	payload, ok := exec.args[1].([]byte)
	if !ok || payload == nil {
		t.Fatalf("expected non-nil payload arg, got %#v", exec.args[1])
	}
}

func TestInsertWithWrapsStorageError(t *testing.T) {
	store, err := New(&sql.DB{}, Dialect{Name: "test"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	boom := errors.New("boom")

	_, err = store.InsertWith(context.Background(), &fakeExecutor{err: boom}, []byte("x"))
	if !errors.Is(err, boom) || !spool.IsStorage(err) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "spool test: insert") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestQueriesDollarPlaceholders(t *testing.T) {
	names, err := ResolveNames()
	if err != nil {
		t.Fatalf("resolve names: %v", err)
	}
	q := newQueries(names, DollarPlaceholder)

	if q.claim != "UPDATE spool SET claimed_at = $1 WHERE id = $2 AND claimed_at IS NULL" {
		t.Fatalf("unexpected claim query: %s", q.claim)
	}
	if q.recover != "UPDATE spool SET claimed_at = NULL WHERE claimed_at IS NOT NULL AND claimed_at < $1" {
		t.Fatalf("unexpected recover query: %s", q.recover)
	}
	if !strings.HasSuffix(q.selectLimited, "ORDER BY id ASC LIMIT $1") {
		t.Fatalf("unexpected select query: %s", q.selectLimited)
	}
	if strings.Contains(q.selectAll, "LIMIT") {
		t.Fatalf("unbounded select must not limit: %s", q.selectAll)
	}
}
