package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a write violates a uniqueness
	// constraint. The caller must resolve the conflict, not retry blindly.
	ErrDuplicateKey = errors.New("duplicate key: uniqueness constraint violated")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
