package space

import "errors"

// Domain errors for the space package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, space.ErrSpaceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrSpaceNotFound is returned when a space id does not exist.
	ErrSpaceNotFound = errors.New("space: not found")

	// ErrSpaceExists is returned when creating a space with an existing id.
	ErrSpaceExists = errors.New("space: already exists")

	// ErrSourceNotFound is returned when a source id does not exist.
	ErrSourceNotFound = errors.New("space: source not found")

	// ErrSourceExists is returned when creating a source whose id or
	// (adapter_id, entity_id) route already exists.
	ErrSourceExists = errors.New("space: source already exists")

	// ErrInvalidName is returned when a display name is empty or too long.
	ErrInvalidName = errors.New("space: invalid name")

	// ErrInvalidProperty is returned when a source property fails
	// catalog validation.
	ErrInvalidProperty = errors.New("space: invalid property assignment")
)
