package adapter

import (
	"context"
	"time"

	"github.com/habitat-home/habitat-core/internal/property"
)

// Adapter is the contract every integration implementation must honor.
//
// Start and Stop bound the adapter's lifetime; between them the adapter may
// push callbacks at any time from its own goroutines. Observe, Query and
// Execute perform network I/O against the downstream device or service and
// must respect ctx cancellation; callers treat them as long-latency.
type Adapter interface {
	// Start brings the adapter online. It should return once the adapter
	// is ready to serve pull operations; long-lived work (SSE streams,
	// polling loops) runs in goroutines owned by the adapter.
	Start(ctx context.Context) error

	// Stop shuts the adapter down and releases its resources.
	// It must be safe to call after a failed Start.
	Stop(ctx context.Context) error

	// Observe reads the live state of one entity's property.
	// Errors indicate the downstream is unreachable or misbehaving;
	// callers are responsible for cache fallback.
	Observe(ctx context.Context, entityID string, prop property.Name) (map[string]any, error)

	// Query fetches collection items (e.g. calendar events) for an entity.
	Query(ctx context.Context, entityID string, prop property.Name, params map[string]any) (QueryResult, error)

	// Execute issues a command. Failures are returned in the result,
	// never as an error; the error return is reserved for transport-level
	// faults the supervisor converts into a failed result.
	Execute(ctx context.Context, entityID string, prop property.Name, params map[string]any) (ExecuteResult, error)
}

// ProcessInfo is optionally implemented by adapters hosted in an external
// OS process; the supervisor surfaces the pid and the child's restart
// count in AdapterHealth.
type ProcessInfo interface {
	PID() int

	// Restarts reports how many times the hosting process has been
	// restarted after a crash. A crash-looping child must show up in
	// health even when the in-process adapter object never panicked.
	Restarts() int
}

// QueryResult holds the items returned by a collection query.
type QueryResult struct {
	Items []Item `json:"items"`
}

// Item is one element of a collection query result.
type Item struct {
	// ID is the adapter-native item identifier, stable across fetches.
	ID string `json:"id"`

	// Data is the arbitrary item payload.
	Data map[string]any `json:"data"`

	// StartsAt/EndsAt bound the item in time for range queries.
	// Nil for items with no time dimension.
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// ExecuteResult reports the outcome of a command.
type ExecuteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Entity describes an adapter-discovered entity for dynamic registration.
type Entity struct {
	// ID is the adapter-native entity identifier.
	ID string `json:"id"`

	// Name is a human-readable display name.
	Name string `json:"name"`

	// Property is the domain the entity exposes.
	Property property.Name `json:"property"`

	// Role within the property domain. Defaults to the domain's first
	// role when empty.
	Role property.Role `json:"role,omitempty"`

	// Features the entity supports, a subset of the domain vocabulary.
	Features []property.Feature `json:"features,omitempty"`
}

// LogEntry is one log line reported by an adapter.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Callbacks is the inbound surface the supervisor hands to each adapter
// instance. Adapters push into it from their own goroutines; all methods
// are safe for concurrent use and must not block for extended periods.
type Callbacks interface {
	// StateChanged reports a new state for one entity's property.
	// previous may be nil when the adapter does not track prior state.
	StateChanged(adapterID, entityID string, prop property.Name, state, previous map[string]any)

	// ReachabilityChanged reports the adapter's connection to its
	// downstream going up or down.
	ReachabilityChanged(adapterID string, reachable bool)

	// EntitiesRegistered reports entities discovered at runtime.
	EntitiesRegistered(adapterID string, entities []Entity)

	// Log appends an entry to the adapter's log buffer.
	Log(adapterID string, entry LogEntry)
}

// Factory constructs an adapter instance. The config blob has secret
// references already resolved. The callbacks surface is live immediately,
// but adapters must not push state before Start.
type Factory func(id string, config map[string]any, cb Callbacks) (Adapter, error)

// SetupCapabilities advertises optional configuration-time features of an
// adapter type, consumed by setup tooling outside this core.
type SetupCapabilities struct {
	// Discovery indicates the type can scan for devices on the network.
	Discovery bool `json:"discovery"`

	// Pairing indicates the type requires an interactive pairing step.
	Pairing bool `json:"pairing"`
}

// Registration binds a factory and its setup capabilities to a type name.
type Registration struct {
	Factory      Factory
	Capabilities SetupCapabilities
}
