package postgres

import (
	"context"
	"fmt"
)

// TryLock takes a session advisory lock keyed by hashtext(name) without waiting.
// The lock lives on a dedicated connection which the returned unlock releases.
func (s *Store) TryLock(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	if name == "" {
		return nil, false, ErrLockNameRequired
	}

	conn, err := s.DB().Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("spool postgres: lock conn failed: %w", err)
	}

	var got bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", name).Scan(&got); err != nil {
		_ = conn.Close()

		return nil, false, fmt.Errorf("spool postgres: acquire lock failed: %w", err)
	}
	if !got {
		_ = conn.Close()

		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		defer conn.Close()

		var released bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", name).Scan(&released); err != nil {
			return fmt.Errorf("spool postgres: release lock failed: %w", err)
		}

		return nil
	}

	return unlock, true, nil
}
