package postgres

import (
	"errors"

	"github.com/velmie/spool/internal/sqlstore"
)

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = sqlstore.ErrDBRequired
	// ErrInvalidIdentifier is returned when a table or column name has disallowed characters.
	ErrInvalidIdentifier = sqlstore.ErrInvalidIdentifier
	// ErrLockNameRequired is returned when TryLock is called with an empty name.
	ErrLockNameRequired = errors.New("spool postgres: lock name is required")
)
