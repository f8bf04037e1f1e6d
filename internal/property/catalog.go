package property

import "fmt"

// Version identifies the catalog revision. Bump when any domain schema
// gains or loses fields so external consumers can detect drift.
const Version = "1"

// Name identifies a property domain. The set is closed: adapters and
// sources may only expose properties listed in the catalog.
type Name string

// Property domain constants.
const (
	Illumination Name = "illumination"
	Climate      Name = "climate"
	Occupancy    Name = "occupancy"
	Access       Name = "access"
	Media        Name = "media"
	Power        Name = "power"
	Water        Name = "water"
	Safety       Name = "safety"
	AirQuality   Name = "air_quality"
	Schedule     Name = "schedule"
	Weather      Name = "weather"
)

// All returns every property domain in the catalog.
func All() []Name {
	return []Name{
		Illumination, Climate, Occupancy, Access, Media, Power,
		Water, Safety, AirQuality, Schedule, Weather,
	}
}

// Valid reports whether n is a known property domain.
func Valid(n Name) bool {
	_, ok := catalog[n]
	return ok
}

// Feature is a capability flag within a property domain
// (e.g. "dimmable" for illumination).
type Feature string

// Role describes how a source relates to its property within a space
// (e.g. "primary" vs "sensor").
type Role string

// Roles shared across domains.
const (
	RolePrimary Role = "primary"
	RoleAccent  Role = "accent"
	RoleSensor  Role = "sensor"
	RoleControl Role = "control"
)

// FeatureRangeQuery marks domains whose state is a collection fetched by
// time-ranged queries (calendar entries) rather than a scalar snapshot.
const FeatureRangeQuery Feature = "range_query"

// DomainSchema is the fixed schema for one property domain.
type DomainSchema struct {
	// StateFields are the keys an adapter may report in state JSON.
	StateFields []string `json:"state_fields"`

	// CommandFields are the keys a caller may send in influence params.
	CommandFields []string `json:"command_fields"`

	// Features is the vocabulary a SourceProperty feature set must be a
	// subset of.
	Features []Feature `json:"features"`

	// Roles is the vocabulary for SourceProperty role values.
	Roles []Role `json:"roles"`
}

// catalog is the authoritative domain schema table. Read-only after init.
var catalog = map[Name]DomainSchema{
	Illumination: {
		StateFields:   []string{"on", "brightness", "color_temp", "color"},
		CommandFields: []string{"on", "brightness", "color_temp", "color", "transition"},
		Features:      []Feature{"dimmable", "color_temp", "color"},
		Roles:         []Role{RolePrimary, RoleAccent, RoleSensor},
	},
	Climate: {
		StateFields:   []string{"temperature", "humidity", "setpoint", "mode", "heating"},
		CommandFields: []string{"setpoint", "mode"},
		Features:      []Feature{"setpoint", "mode_select", "humidity"},
		Roles:         []Role{RolePrimary, RoleSensor},
	},
	Occupancy: {
		StateFields:   []string{"occupied", "motion", "count", "last_motion"},
		CommandFields: []string{},
		Features:      []Feature{"presence", "count"},
		Roles:         []Role{RoleSensor},
	},
	Access: {
		StateFields:   []string{"open", "locked", "position", "obstructed"},
		CommandFields: []string{"open", "locked", "position"},
		Features:      []Feature{"lockable", "position"},
		Roles:         []Role{RolePrimary, RoleSensor},
	},
	Media: {
		StateFields:   []string{"playing", "volume", "muted", "track", "input"},
		CommandFields: []string{"playing", "volume", "muted", "input"},
		Features:      []Feature{"volume", "input_select"},
		Roles:         []Role{RolePrimary},
	},
	Power: {
		StateFields:   []string{"on", "power_w", "energy_kwh", "voltage"},
		CommandFields: []string{"on"},
		Features:      []Feature{"switchable", "metering"},
		Roles:         []Role{RolePrimary, RoleSensor},
	},
	Water: {
		StateFields:   []string{"flow", "valve_open", "leak", "consumption_l"},
		CommandFields: []string{"valve_open"},
		Features:      []Feature{"valve", "metering", "leak_detect"},
		Roles:         []Role{RolePrimary, RoleSensor},
	},
	Safety: {
		StateFields:   []string{"alarm", "smoke", "co", "tamper", "battery_low"},
		CommandFields: []string{"alarm"},
		Features:      []Feature{"smoke", "co", "siren"},
		Roles:         []Role{RoleSensor, RolePrimary},
	},
	AirQuality: {
		StateFields:   []string{"co2", "voc", "pm25", "aqi"},
		CommandFields: []string{},
		Features:      []Feature{"co2", "voc", "particulates"},
		Roles:         []Role{RoleSensor},
	},
	Schedule: {
		StateFields:   []string{"next_event", "busy"},
		CommandFields: []string{},
		Features:      []Feature{"range_query"},
		Roles:         []Role{RolePrimary},
	},
	Weather: {
		StateFields:   []string{"temperature", "condition", "wind_speed", "precipitation"},
		CommandFields: []string{},
		Features:      []Feature{"forecast"},
		Roles:         []Role{RoleSensor},
	},
}

// Schema returns the domain schema for a property.
// Returns ErrUnknownProperty if the property is not in the catalog.
func Schema(n Name) (DomainSchema, error) {
	s, ok := catalog[n]
	if !ok {
		return DomainSchema{}, fmt.Errorf("%w: %q", ErrUnknownProperty, n)
	}
	return s, nil
}

// Catalog returns a copy of the full domain schema table.
// The copy is safe for callers to hold; the underlying catalog never changes.
func Catalog() map[Name]DomainSchema {
	out := make(map[Name]DomainSchema, len(catalog))
	for n, s := range catalog {
		out[n] = s
	}
	return out
}

// HasFeature reports whether the domain's vocabulary includes a feature.
// Unknown domains report false.
func HasFeature(n Name, f Feature) bool {
	schema, ok := catalog[n]
	if !ok {
		return false
	}
	return containsFeature(schema.Features, f)
}

// ValidateFeatures checks that every feature is in the domain's vocabulary.
func ValidateFeatures(n Name, features []Feature) error {
	schema, err := Schema(n)
	if err != nil {
		return err
	}
	for _, f := range features {
		if !containsFeature(schema.Features, f) {
			return fmt.Errorf("%w: feature %q not in %s vocabulary", ErrInvalidFeature, f, n)
		}
	}
	return nil
}

// ValidateRole checks that a role is in the domain's vocabulary.
func ValidateRole(n Name, role Role) error {
	schema, err := Schema(n)
	if err != nil {
		return err
	}
	for _, r := range schema.Roles {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q not in %s vocabulary", ErrInvalidRole, role, n)
}

// ValidateCommand checks that every key in params is an allowed command
// field for the domain. Value types are not checked here; adapters own
// value semantics.
func ValidateCommand(n Name, params map[string]any) error {
	schema, err := Schema(n)
	if err != nil {
		return err
	}
	for key := range params {
		if !containsString(schema.CommandFields, key) {
			return fmt.Errorf("%w: field %q not commandable for %s", ErrInvalidCommand, key, n)
		}
	}
	return nil
}

func containsFeature(haystack []Feature, needle Feature) bool {
	for _, f := range haystack {
		if f == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
