package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/velmie/spool"
	"github.com/velmie/spool/internal/sqlstore"
)

// DriverName is the database/sql driver name registered by go-sqlite3.
const DriverName = "sqlite3"

var dialect = sqlstore.Dialect{
	Name:        "sqlite",
	Placeholder: sqlstore.QuestionPlaceholder,
	BufferRows:  true,
}

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = sqlstore.ErrDBRequired
	// ErrInvalidIdentifier is returned when a table or column name has disallowed characters.
	ErrInvalidIdentifier = sqlstore.ErrInvalidIdentifier
)

// Option configures the SQLite store.
type Option = sqlstore.Option

// WithTable sets the spool table name.
func WithTable(name string) Option {
	return sqlstore.WithTable(name)
}

// WithColumns sets the primary key, payload and claim time column names.
func WithColumns(id, payload, claimedAt string) Option {
	return sqlstore.WithColumns(id, payload, claimedAt)
}

// WithGenerator sets the UUID generator.
func WithGenerator(gen spool.IDGenerator) Option {
	return sqlstore.WithGenerator(gen)
}

// Store implements spool.Store on SQLite.
type Store struct {
	*sqlstore.Store
}

var (
	_ spool.Store          = (*Store)(nil)
	_ spool.PendingCounter = (*Store)(nil)
)

// Open opens the database at path with a busy timeout and a single connection.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("spool sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	return db, nil
}

// NewStore constructs a SQLite store.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	store, err := sqlstore.New(db, dialect, opts...)
	if err != nil {
		return nil, err
	}

	return &Store{Store: store}, nil
}

// MustNewStore constructs a SQLite store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}
