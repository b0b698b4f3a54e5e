package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Insert-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: insert-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrImmutable is returned when a write targets a record that reached
	// a terminal state (a completed transaction or a finished batch).
	ErrImmutable = errors.New("record is immutable")
)
