package supervisor

import "errors"

var (
	// ErrAdapterNotFound indicates the adapter id is not in the
	// persisted configuration.
	ErrAdapterNotFound = errors.New("supervisor: adapter not found")

	// ErrAdapterNotRunning indicates a pull operation or lifecycle
	// action targeted an adapter with no running instance.
	ErrAdapterNotRunning = errors.New("supervisor: adapter not running")

	// ErrAdapterExists indicates a create collided with an existing id.
	ErrAdapterExists = errors.New("supervisor: adapter already exists")
)
