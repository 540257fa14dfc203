package spool

import "time"

// Record is a stored spool message as returned by a Store.
type Record struct {
	// ID is assigned by the store at insert time and never reused.
	ID ID
	// Payload holds the encoded message. It may be empty or undecodable when the
	// backing document was written by something other than this package.
	Payload []byte
	// ClaimedAt is zero while the record is eligible for delivery.
	ClaimedAt time.Time
}

// Claimed reports whether the record currently carries a claim.
func (r Record) Claimed() bool {
	return !r.ClaimedAt.IsZero()
}

// State returns the lifecycle state derived from ClaimedAt.
func (r Record) State() State {
	if r.Claimed() {
		return StateClaimed
	}

	return StateQueued
}
