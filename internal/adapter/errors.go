package adapter

import "errors"

// Domain errors for the adapter package.
var (
	// ErrUnknownType is returned by Resolve for an unregistered type name.
	ErrUnknownType = errors.New("adapter: unknown type")

	// ErrNotStarted is returned by adapters for pull operations before Start.
	ErrNotStarted = errors.New("adapter: not started")

	// ErrEntityNotFound is returned when an entity id is unknown to the adapter.
	ErrEntityNotFound = errors.New("adapter: entity not found")

	// ErrUnreachable is returned when the downstream device or service
	// cannot be contacted.
	ErrUnreachable = errors.New("adapter: downstream unreachable")
)
