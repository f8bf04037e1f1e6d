package state

import "errors"

// Domain errors for the state package.
var (
	// ErrStateNotFound is returned when no state is cached for a
	// (source, property) key.
	ErrStateNotFound = errors.New("state: not found")
)
