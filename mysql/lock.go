package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// TryLock takes the named session lock with GET_LOCK without waiting. The lock is
// bound to a dedicated connection which the returned unlock releases.
func (s *Store) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	if name == "" {
		return nil, false, ErrLockNameRequired
	}

	conn, err := s.DB().Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("spool mysql: lock conn failed: %w", err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&got); err != nil {
		_ = conn.Close()

		return nil, false, fmt.Errorf("spool mysql: acquire lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		_ = conn.Close()

		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		defer conn.Close()

		var released sql.NullInt64
		if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
			return fmt.Errorf("spool mysql: release lock failed: %w", err)
		}

		return nil
	}

	return unlock, true, nil
}
