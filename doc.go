// Package spool provides a durable store-and-forward message spool with pluggable
// storage backends.
//
// Typical flow:
//  1. Enqueue messages; each becomes an unclaimed record in a Store.
//  2. Periodically Flush the spool through a Transport: every unclaimed record is claimed,
//     sent and deleted. Malformed records are skipped and left in place.
//  3. Periodically Recover stale claims, so records abandoned by a crashed flush become
//     eligible again.
//
// A Runner performs steps 2 and 3 on a schedule. Claims are atomic conditional updates in
// every Store, which keeps concurrent flushes from delivering a record twice.
//
// Backends live in the memory, mysql, postgres, sqlite, mongo and redis packages.
package spool
