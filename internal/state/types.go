package state

import (
	"time"

	"github.com/habitat-home/habitat-core/internal/property"
)

// Record is the last-known state for one (source, property) pair.
type Record struct {
	SourceID string        `json:"source_id"`
	Property property.Name `json:"property"`

	// State is the last accepted state JSON.
	State map[string]any `json:"state"`

	// PreviousState is the state before the last change, when known.
	PreviousState map[string]any `json:"previous_state,omitempty"`

	// Timestamp is when the state was accepted by the writer.
	Timestamp time.Time `json:"timestamp"`
}

// CollectionItem is one cached element of a paged or time-ranged adapter
// query result (e.g. a calendar event).
type CollectionItem struct {
	SourceID string        `json:"source_id"`
	Property property.Name `json:"property"`
	ItemID   string        `json:"item_id"`

	// Data is the arbitrary item payload.
	Data map[string]any `json:"data"`

	// StartsAt/EndsAt bound the item in time for range queries.
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	// FetchedAt records when the item was last seen upstream; pruning
	// removes items not refreshed since a cutoff.
	FetchedAt time.Time `json:"fetched_at"`
}
