// Package mysql provides a MySQL 8.0+ spool store.
//
// Records are kept in one table keyed by BINARY(16) UUIDv7 ids so ORDER BY id
// follows insertion order. A claim is a single conditional UPDATE and the
// recovery sweep is coordinated across processes with GET_LOCK.
//
// See Schema for the table definition.
package mysql
