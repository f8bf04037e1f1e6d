package space

import (
	"sync"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/property"
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

// routeKey indexes sources by their adapter route.
type routeKey struct {
	adapterID string
	entityID  string
}

// Registry is the in-memory space/source graph.
//
// It is rebuilt wholesale by Load; the only field-level mutations are
// SetAdapterReachability and ApplyEntityRegistrations. All public methods
// are safe for concurrent use; lookups return deep copies so callers can
// never mutate the graph through a returned value.
type Registry struct {
	mu sync.RWMutex

	spaces     map[string]*Space
	spaceOrder []string

	sources     map[string]*Source
	sourceOrder []string // global insertion order, drives per-space ordering

	// byRoute is the reverse index (adapter id, entity id) -> source id,
	// maintained alongside the forward graph on every load.
	byRoute map[routeKey]string

	// pending holds adapter-registered entities with no provisioned
	// source yet, keyed by adapter id. Provisioning them is an explicit
	// configuration step outside this registry.
	pending map[string][]adapter.Entity

	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		spaces:  make(map[string]*Space),
		sources: make(map[string]*Source),
		byRoute: make(map[routeKey]string),
		pending: make(map[string][]adapter.Entity),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Load atomically replaces the graph.
//
// Safe to call repeatedly (reload after configuration changes) without
// leaking stale entries: everything except the pending-entity set is
// rebuilt from the arguments. Sources arrive in repository order, which
// becomes the load-bearing insertion order for GetSourcesForProperty.
// Reachability flags on the incoming sources are preserved as given;
// callers re-apply reachability for running adapters after a reload.
func (r *Registry) Load(spaces []Space, sources []Source, props []SourceProperty) {
	// Group property assignments by source id before taking the lock.
	bySource := make(map[string][]SourceProperty, len(sources))
	for i := range props {
		p := props[i]
		bySource[p.SourceID] = append(bySource[p.SourceID], *p.DeepCopy())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.spaces = make(map[string]*Space, len(spaces))
	r.spaceOrder = make([]string, 0, len(spaces))
	for i := range spaces {
		s := spaces[i]
		if _, dup := r.spaces[s.ID]; dup {
			r.logger.Warn("duplicate space id in load, keeping first", "space", s.ID)
			continue
		}
		cpy := s
		r.spaces[s.ID] = &cpy
		r.spaceOrder = append(r.spaceOrder, s.ID)
	}

	r.sources = make(map[string]*Source, len(sources))
	r.sourceOrder = make([]string, 0, len(sources))
	r.byRoute = make(map[routeKey]string, len(sources))
	for i := range sources {
		src := sources[i].DeepCopy()
		if _, dup := r.sources[src.ID]; dup {
			r.logger.Warn("duplicate source id in load, keeping first", "source", src.ID)
			continue
		}
		src.Properties = bySource[src.ID]
		r.sources[src.ID] = src
		r.sourceOrder = append(r.sourceOrder, src.ID)
		r.byRoute[routeKey{src.AdapterID, src.EntityID}] = src.ID
	}

	r.logger.Info("space registry loaded",
		"spaces", len(r.spaces),
		"sources", len(r.sources),
	)
}

// GetSpace returns a space by id, or nil if not found.
func (r *Registry) GetSpace(id string) *Space {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.spaces[id]
	if !ok {
		return nil
	}
	cpy := *s
	return &cpy
}

// GetAllSpaces returns all spaces in load order.
func (r *Registry) GetAllSpaces() []Space {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Space, 0, len(r.spaceOrder))
	for _, id := range r.spaceOrder {
		out = append(out, *r.spaces[id])
	}
	return out
}

// GetSource returns a source by id, or nil if not found.
func (r *Registry) GetSource(id string) *Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return nil
	}
	return s.DeepCopy()
}

// GetSourceRoute returns the (adapter id, entity id) route for a source.
// The second return is false when the source is unknown.
func (r *Registry) GetSourceRoute(sourceID string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[sourceID]
	if !ok {
		return Route{}, false
	}
	return Route{AdapterID: s.AdapterID, EntityID: s.EntityID}, true
}

// GetSourcesForSpace returns all sources in a space, in insertion order.
func (r *Registry) GetSourcesForSpace(spaceID string) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Source
	for _, id := range r.sourceOrder {
		s := r.sources[id]
		if s.SpaceID == spaceID {
			out = append(out, *s.DeepCopy())
		}
	}
	return out
}

// GetSourcesForProperty returns all sources in a space exposing a property,
// in stable insertion order. Order is load-bearing: callers use the first
// element as the default target when no explicit source is given.
func (r *Registry) GetSourcesForProperty(spaceID string, prop property.Name) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Source
	for _, id := range r.sourceOrder {
		s := r.sources[id]
		if s.SpaceID != spaceID {
			continue
		}
		for i := range s.Properties {
			if s.Properties[i].Property == prop {
				out = append(out, *s.DeepCopy())
				break
			}
		}
	}
	return out
}

// ResolveEntity maps an adapter route back to its source and space.
// Returns nils when no provisioned source matches the route.
func (r *Registry) ResolveEntity(adapterID, entityID string) (*Space, *Source) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sourceID, ok := r.byRoute[routeKey{adapterID, entityID}]
	if !ok {
		return nil, nil
	}
	src := r.sources[sourceID]
	sp, ok := r.spaces[src.SpaceID]
	if !ok {
		return nil, src.DeepCopy()
	}
	spCpy := *sp
	return &spCpy, src.DeepCopy()
}

// SetAdapterReachability flips the reachable flag on every source routed
// through the given adapter id. Sources of other adapters are untouched;
// this is how an adapter disconnect propagates without per-source
// bookkeeping elsewhere.
func (r *Registry) SetAdapterReachability(adapterID string, reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, s := range r.sources {
		if s.AdapterID == adapterID {
			s.Reachable = reachable
			count++
		}
	}

	r.logger.Debug("adapter reachability applied",
		"adapter", adapterID,
		"reachable", reachable,
		"sources", count,
	)
}

// ApplyEntityRegistrations merges adapter-reported dynamic entities into
// the graph. Entities that match a provisioned source by (adapter id,
// entity id) refresh that source's property assignment in place; the rest
// are retained as pending entities for explicit provisioning, replacing
// any earlier pending set for the adapter.
func (r *Registry) ApplyEntityRegistrations(adapterID string, entities []adapter.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var unprovisioned []adapter.Entity
	merged := 0
	for _, e := range entities {
		sourceID, ok := r.byRoute[routeKey{adapterID, e.ID}]
		if !ok {
			unprovisioned = append(unprovisioned, e)
			continue
		}
		src := r.sources[sourceID]
		mergeEntityProperty(src, e)
		merged++
	}
	r.pending[adapterID] = unprovisioned

	r.logger.Info("entity registrations applied",
		"adapter", adapterID,
		"merged", merged,
		"pending", len(unprovisioned),
	)
}

// PendingEntities returns adapter-reported entities that have no
// provisioned source yet.
func (r *Registry) PendingEntities(adapterID string) []adapter.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]adapter.Entity, len(r.pending[adapterID]))
	copy(out, r.pending[adapterID])
	return out
}

// SourceCount returns the number of sources in the graph.
func (r *Registry) SourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// SourceCountForAdapter returns the number of provisioned sources routed
// through the given adapter.
func (r *Registry) SourceCountForAdapter(adapterID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.byRoute {
		if key.adapterID == adapterID {
			n++
		}
	}
	return n
}

// mergeEntityProperty refreshes an existing source's property assignment
// from a registered entity. New properties are appended; existing ones get
// their features refreshed. Caller must hold the registry lock.
func mergeEntityProperty(src *Source, e adapter.Entity) {
	for i := range src.Properties {
		if src.Properties[i].Property == e.Property {
			if len(e.Features) > 0 {
				src.Properties[i].Features = append([]property.Feature(nil), e.Features...)
			}
			return
		}
	}

	role := e.Role
	if role == "" {
		if schema, err := property.Schema(e.Property); err == nil && len(schema.Roles) > 0 {
			role = schema.Roles[0]
		}
	}
	src.Properties = append(src.Properties, SourceProperty{
		SourceID: src.ID,
		Property: e.Property,
		Role:     role,
		Features: append([]property.Feature(nil), e.Features...),
	})
}
