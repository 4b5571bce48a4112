package memory

import "errors"

var (
	// ErrStoreUnavailable wraps persistent-store failures on the write path.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrInvalidArgument marks caller errors that abort the call immediately.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a lookup by id matches nothing.
	ErrNotFound = errors.New("memory not found")
)
