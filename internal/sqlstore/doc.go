// Package sqlstore holds the database/sql machinery shared by the SQL spool backends.
//
// Records live in a single table with a binary primary key, a binary payload and a
// nullable claim time kept as unix milliseconds. A claim is a conditional update
// guarded by "claim time IS NULL", so at most one flush can win a record.
package sqlstore
