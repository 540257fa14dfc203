package mysql

import (
	"fmt"

	"github.com/velmie/spool/internal/sqlstore"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	%[2]s BINARY(16) NOT NULL,
	%[3]s LONGBLOB NOT NULL,
	%[4]s BIGINT NULL,
	PRIMARY KEY (%[2]s),
	INDEX %[5]s (%[4]s, %[2]s)
);`

// Schema returns the CREATE TABLE statement for the table and columns selected by opts.
func Schema(opts ...Option) (string, error) {
	names, err := sqlstore.ResolveNames(opts...)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, names.Table, names.ID, names.Payload, names.ClaimedAt, names.IndexName()), nil
}
