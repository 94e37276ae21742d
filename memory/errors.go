package memory

import "errors"

// Common errors returned by memory operations.
var (
	// ErrNotFound is returned by Get when no entry exists at the key.
	ErrNotFound = errors.New("memory: entry not found")

	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("memory: invalid key")

	// ErrInvalidCategory is returned for categories outside the
	// defined set.
	ErrInvalidCategory = errors.New("memory: invalid category")

	// ErrStorageFailed wraps failures of the underlying backend.
	ErrStorageFailed = errors.New("memory: storage operation failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("memory: store is closed")
)
