package memstore

import "errors"

var (
	// ErrAlreadyInitialized is returned by Init on an already-initialized store.
	ErrAlreadyInitialized = errors.New("memstore: already initialized")
	// ErrNotInitialized is returned when an operation requires Init first.
	ErrNotInitialized = errors.New("memstore: not initialized")
	// ErrInvalidArgument is returned for null/empty required inputs.
	ErrInvalidArgument = errors.New("memstore: invalid argument")
	// ErrNotFound is returned by get_by_id for an absent memory_id.
	ErrNotFound = errors.New("memstore: entry not found")
)
