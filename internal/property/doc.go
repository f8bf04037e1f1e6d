// Package property defines the property domain catalog for Habitat Core.
//
// A property is a domain of device capability (illumination, climate,
// occupancy, ...) with a fixed schema: the state fields an adapter may
// report, the command fields a caller may send, a feature vocabulary and a
// role vocabulary. The catalog is static configuration data; the Property
// Engine routes and the API layer validates against it, but no behaviour
// lives here.
//
// # Usage
//
//	schema, err := property.Schema(property.Illumination)
//	if err != nil { ... }
//	if err := property.ValidateCommand(property.Illumination, params); err != nil { ... }
//
// The catalog is versioned: Version changes whenever a domain schema gains
// or loses fields, so external consumers can detect drift.
package property
