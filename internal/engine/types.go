package engine

import (
	"time"

	"github.com/habitat-home/habitat-core/internal/property"
)

// Target selects what an observe/query/influence call acts on. Exactly
// one of Source or Property must be set; a Target with both set acts in
// single-source mode with the explicit property.
type Target struct {
	// Source is a source id for single-source mode.
	Source string `json:"source,omitempty"`

	// Property selects by domain: the first exposing source for query,
	// every exposing source for observe/influence fan-out.
	Property property.Name `json:"property,omitempty"`
}

// Observation is the result of one observe for one (source, property).
type Observation struct {
	Source   string        `json:"source"`
	Property property.Name `json:"property"`

	// State is the observed state payload. When neither a live read nor
	// a cache entry is available it is {"error": "unreachable"}.
	State map[string]any `json:"state"`

	// Cached marks a value served from the store instead of a live read.
	Cached bool `json:"cached,omitempty"`

	// Reachable is the source's reachability flag at observation time.
	Reachable bool `json:"reachable"`

	// Timestamp is the live read time, or the cache entry's timestamp
	// for cached results. Zero when no state was available at all.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// CommandResult is the per-source outcome of an influence call.
// Influence always returns one entry per targeted source.
type CommandResult struct {
	Source  string `json:"source"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// QueryOutcome holds the collection items returned by a query, after
// they have been persisted to the store.
type QueryOutcome struct {
	Source   string        `json:"source"`
	Property property.Name `json:"property"`
	Items    []QueryItem   `json:"items"`
}

// QueryItem is one collection item in a query outcome.
type QueryItem struct {
	ID       string         `json:"id"`
	Data     map[string]any `json:"data"`
	StartsAt *time.Time     `json:"starts_at,omitempty"`
	EndsAt   *time.Time     `json:"ends_at,omitempty"`
}

// Event is the normalized record of one accepted state change.
type Event struct {
	Space         string         `json:"space"`
	Source        string         `json:"source"`
	Property      property.Name  `json:"property"`
	State         map[string]any `json:"state"`
	PreviousState map[string]any `json:"previous_state,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// SpaceCapabilities is the controllability projection of one space.
type SpaceCapabilities struct {
	Space      string                              `json:"space"`
	Name       string                              `json:"name"`
	Properties map[property.Name][]SourceCapability `json:"properties"`
}

// SourceCapability describes one source's exposure of one property.
type SourceCapability struct {
	Source       string             `json:"source"`
	Name         string             `json:"name"`
	Role         property.Role      `json:"role"`
	Mounting     *string            `json:"mounting,omitempty"`
	Features     []property.Feature `json:"features,omitempty"`
	Reachable    bool               `json:"reachable"`
	CommandHints map[string]any     `json:"command_hints,omitempty"`
}
