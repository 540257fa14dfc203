// Package postgres provides a PostgreSQL spool store on top of lib/pq.
//
// Ids are stored as BYTEA so ORDER BY id matches UUIDv7 creation order.
// Cross-process coordination uses session advisory locks.
package postgres
