package spool

// State represents the lifecycle state of a spool record.
type State int8

const (
	// StateQueued indicates the record is eligible for delivery.
	StateQueued State = 0
	// StateClaimed indicates a flush is delivering the record, or abandoned it.
	StateClaimed State = 1
)

// String returns a lower-case state name.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}
