package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/velmie/spool"
)

type rowsCursor struct {
	rows    *sql.Rows
	op      string
	current spool.Record
	err     error
}

func (c *rowsCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = spool.WrapStorage(c.op, err)

		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = spool.WrapStorage(c.op, err)
		}

		return false
	}

	var (
		raw     []byte
		payload []byte
	)
	if err := c.rows.Scan(&raw, &payload); err != nil {
		c.err = spool.WrapStorage(c.op, err)

		return false
	}

	// A key that is not a 16 byte id surfaces as an empty record which the
	// engine skips as malformed.
	id, err := spool.IDFromBytes(raw)
	if err != nil {
		c.current = spool.Record{}
	} else {
		c.current = spool.Record{ID: id, Payload: payload}
	}

	return true
}

func (c *rowsCursor) Record() spool.Record {
	return c.current
}

func (c *rowsCursor) Err() error {
	return c.err
}

func (c *rowsCursor) Close(context.Context) error {
	return c.rows.Close()
}

func bufferRows(ctx context.Context, cur *rowsCursor) (spool.Cursor, error) {
	var records []spool.Record
	for cur.Next(ctx) {
		records = append(records, cur.Record())
	}
	err := errors.Join(cur.Err(), cur.rows.Close())
	if err != nil {
		return nil, err
	}

	return spool.NewSliceCursor(records), nil
}
