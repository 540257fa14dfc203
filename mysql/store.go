package mysql

import (
	"database/sql"

	"github.com/velmie/spool"
	"github.com/velmie/spool/internal/sqlstore"
)

var dialect = sqlstore.Dialect{
	Name:        "mysql",
	Placeholder: sqlstore.QuestionPlaceholder,
}

// Store implements spool.Store on MySQL.
type Store struct {
	*sqlstore.Store
}

var (
	_ spool.Store          = (*Store)(nil)
	_ spool.PendingCounter = (*Store)(nil)
	_ spool.Locker         = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	store, err := sqlstore.New(db, dialect, opts...)
	if err != nil {
		return nil, err
	}

	return &Store{Store: store}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}
