package spool

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

const idRawLength = 16

// ID is a UUID v7 identifier stored as 16 raw bytes.
//
//nolint:recvcheck // Scan requires a pointer receiver, Value uses value receiver for driver.Valuer.
type ID [16]byte

// Bytes returns a copy of the raw 16 bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])

	return out
}

// IsZero reports whether the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the canonical UUID string representation.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// Scan implements sql.Scanner for BINARY(16)/BYTEA/BLOB or textual UUIDs.
// NULL is treated as ErrInvalidID.
func (id *ID) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		return ErrInvalidID
	case []byte:
		if len(value) == idRawLength {
			copy(id[:], value)

			return nil
		}

		return id.UnmarshalText(value)
	case string:
		return id.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("spool: unsupported id type %T: %w", src, ErrInvalidID)
	}
}

// Value implements driver.Valuer, ids are persisted as raw bytes.
func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// ParseID parses a UUID string (canonical or 32 hex) into an ID.
func ParseID(value string) (ID, error) {
	if len(value) != 32 && len(value) != 36 {
		return ID{}, ErrInvalidID
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	return ID(parsed), nil
}

// IDFromBytes converts 16 raw bytes into an ID.
func IDFromBytes(raw []byte) (ID, error) {
	if len(raw) != idRawLength {
		return ID{}, ErrInvalidID
	}
	var id ID
	copy(id[:], raw)

	return id, nil
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// UUIDv7Generator produces time ordered UUID v7 identifiers, so natural key order
// follows insertion order within a single process.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (ID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("spool: generate id failed: %w", err)
	}

	return ID(id), nil
}
