package sqlite

import (
	"fmt"

	"github.com/velmie/spool/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	%[2]s BLOB NOT NULL PRIMARY KEY,
	%[3]s BLOB NOT NULL,
	%[4]s INTEGER NULL
);
CREATE INDEX IF NOT EXISTS %[5]s ON %[1]s (%[4]s, %[2]s);`

// Schema returns the DDL for the table and columns selected by opts.
func Schema(opts ...Option) (string, error) {
	names, err := sqlstore.ResolveNames(opts...)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, names.Table, names.ID, names.Payload, names.ClaimedAt, names.IndexName()), nil
}
