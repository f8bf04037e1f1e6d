package engine

import "errors"

// Routing errors indicate a caller or configuration bug, never a
// runtime fault, and are returned synchronously without retry.
var (
	ErrSpaceNotFound    = errors.New("engine: space not found")
	ErrSourceNotFound   = errors.New("engine: source not found")
	ErrPropertyNotFound = errors.New("engine: no source exposes property")
	ErrNoRoute          = errors.New("engine: source has no adapter route")
	ErrInvalidTarget    = errors.New("engine: target needs a source or a property")
)
