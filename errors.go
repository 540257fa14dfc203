package spool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig is wrapped by every construction-time validation error.
	ErrInvalidConfig = errors.New("spool: invalid configuration")
	// ErrStoreRequired is returned when a nil Store is provided.
	ErrStoreRequired = errors.New("spool: store is required")
	// ErrTransportRequired is returned when a nil Transport is provided.
	ErrTransportRequired = errors.New("spool: transport is required")
	// ErrMalformedPayload marks a stored payload that cannot be decoded into a Message.
	// Flush never returns it, malformed records are skipped and left in place.
	ErrMalformedPayload = errors.New("spool: malformed payload")
	// ErrNoRecipients is returned when a message has no To, Cc or Bcc address.
	ErrNoRecipients = errors.New("spool: message has no recipients")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("spool: id is invalid")
	// ErrWorkerPanic indicates a runner worker panic.
	ErrWorkerPanic = errors.New("spool: worker panic")
)

// StorageError reports a failure talking to the backing store. It always wraps the cause.
type StorageError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *StorageError) Error() string {
	return e.Op + " failed: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage wraps err in a *StorageError. A nil err stays nil.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}

	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err carries a *StorageError.
func IsStorage(err error) bool {
	var storageErr *StorageError

	return errors.As(err, &storageErr)
}

// Error is an engine level failure wrapping a storage or codec error.
type Error struct {
	Op  string
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	return "spool: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CheckName trims value and rejects blank names with an ErrInvalidConfig error.
func CheckName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s cannot be blank", ErrInvalidConfig, field)
	}

	return value, nil
}
