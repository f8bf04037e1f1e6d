package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps adapter type names to their registrations.
//
// Registration typically happens in init() or at startup before the
// supervisor boots, but the registry is safe for concurrent use so
// plugin-discovered types can register at any time.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]Registration
	logger Logger
}

// NewRegistry creates an empty adapter type registry.
func NewRegistry() *Registry {
	return &Registry{
		types:  make(map[string]Registration),
		logger: noopLogger{},
	}
}

// DefaultRegistry is the process-wide registry built-in adapter types
// register into.
var DefaultRegistry = NewRegistry()

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register binds a type name to a registration.
//
// Re-registering an existing name overwrites the previous mapping and logs
// a warning rather than erroring; this supports hot-reload of
// plugin-discovered adapter types without restarting the process.
func (r *Registry) Register(typeName string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[typeName]; exists {
		r.logger.Warn("adapter type re-registered, overwriting previous mapping", "type", typeName)
	}
	r.types[typeName] = reg
}

// Resolve returns the registration for a type name.
//
// An unknown type is a hard error here — the only one in the orchestration
// layer — and the error names the currently known types so a typo in
// configuration is diagnosable from the message alone.
func (r *Registry) Resolve(typeName string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.types[typeName]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %q (known types: %v)", ErrUnknownType, typeName, r.knownLocked())
	}
	return reg, nil
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.knownLocked()
}

// knownLocked returns sorted type names. Caller must hold mu.
func (r *Registry) knownLocked() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
