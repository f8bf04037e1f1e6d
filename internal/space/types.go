package space

import (
	"time"

	"github.com/habitat-home/habitat-core/internal/property"
)

// Space represents a named physical or logical grouping of sources.
type Space struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Floor is an optional grouping tag (e.g. "ground", "1").
	Floor *string `json:"floor,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source is one entity exposed by one adapter, permanently bound to exactly
// one space, one adapter id and one adapter-native entity id.
// (AdapterID, EntityID) is unique: a physical device maps to exactly one
// source row.
type Source struct {
	ID      string `json:"id"`
	SpaceID string `json:"space_id"`
	Name    string `json:"name"`

	// Route to the owning adapter.
	AdapterID string `json:"adapter_id"`
	EntityID  string `json:"entity_id"`

	// Reachable mirrors the owning adapter's reachability. Runtime state
	// maintained by the Registry, never persisted.
	Reachable bool `json:"reachable"`

	// Properties this source exposes, in assignment order.
	Properties []SourceProperty `json:"properties"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Source.
func (s *Source) DeepCopy() *Source {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Properties != nil {
		cpy.Properties = make([]SourceProperty, len(s.Properties))
		for i := range s.Properties {
			cpy.Properties[i] = *s.Properties[i].DeepCopy()
		}
	}
	return &cpy
}

// SourceProperty assigns a property domain to a source.
// (SourceID, Property) is unique.
type SourceProperty struct {
	SourceID string        `json:"source_id"`
	Property property.Name `json:"property"`

	// Role within the property domain (primary, sensor, ...).
	Role property.Role `json:"role"`

	// Mounting is an optional placement hint (e.g. "ceiling", "window").
	Mounting *string `json:"mounting,omitempty"`

	// Features supported, a subset of the domain's feature vocabulary.
	Features []property.Feature `json:"features,omitempty"`

	// CommandHints are optional per-command UI hints (step sizes, ranges).
	CommandHints map[string]any `json:"command_hints,omitempty"`
}

// DeepCopy creates an independent copy of the SourceProperty.
func (p *SourceProperty) DeepCopy() *SourceProperty {
	if p == nil {
		return nil
	}
	cpy := *p
	if p.Features != nil {
		cpy.Features = make([]property.Feature, len(p.Features))
		copy(cpy.Features, p.Features)
	}
	if p.CommandHints != nil {
		cpy.CommandHints = deepCopyMap(p.CommandHints)
	}
	return &cpy
}

// Route identifies the adapter-side target of a source.
type Route struct {
	AdapterID string `json:"adapter_id"`
	EntityID  string `json:"entity_id"`
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
