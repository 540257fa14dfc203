// Package sqlite provides a spool store on a local SQLite database using
// github.com/mattn/go-sqlite3.
//
// SQLite allows a single writer, so the unclaimed selection is read fully before
// the engine starts claiming and Open limits the pool to one connection.
package sqlite
