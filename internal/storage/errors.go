// Package storage defines the persistence interfaces of the transfer desk.
// Journals and snapshots are append-only: rows are never updated.
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record with the same key was already written.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned for a nil record or one missing its key.
	ErrInvalidInput = errors.New("invalid input")
)
