package property

import "errors"

// Domain errors for the property package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, property.ErrUnknownProperty) {
//	    // handle unknown domain
//	}
var (
	// ErrUnknownProperty is returned when a property name is not in the catalog.
	ErrUnknownProperty = errors.New("property: unknown property")

	// ErrInvalidFeature is returned when a feature is outside the domain vocabulary.
	ErrInvalidFeature = errors.New("property: invalid feature")

	// ErrInvalidRole is returned when a role is outside the domain vocabulary.
	ErrInvalidRole = errors.New("property: invalid role")

	// ErrInvalidCommand is returned when a command field is not commandable.
	ErrInvalidCommand = errors.New("property: invalid command field")
)
