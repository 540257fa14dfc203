package sqlstore

import "strconv"

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name prefixes error operations, e.g. "mysql" yields "spool mysql: claim".
	Name string
	// Placeholder returns the n-th (1-based) bind marker.
	Placeholder func(n int) string
	// BufferRows reads the whole unclaimed selection before the cursor is returned.
	// Required when the driver cannot write while a read is open.
	BufferRows bool
}

// QuestionPlaceholder renders "?" markers.
func QuestionPlaceholder(int) string {
	return "?"
}

// DollarPlaceholder renders "$n" markers.
func DollarPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}
