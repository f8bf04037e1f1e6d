package virtual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/property"
)

// TypeName is the registry key for the virtual adapter.
const TypeName = "virtual"

// Register adds the virtual adapter type to the given registry.
func Register(reg *adapter.Registry) {
	reg.Register(TypeName, adapter.Registration{
		Factory: New,
		Capabilities: adapter.SetupCapabilities{
			Discovery: false,
			Pairing:   false,
		},
	})
}

// entity is one simulated device with its live state.
type entity struct {
	info  adapter.Entity
	state map[string]any
	items []adapter.Item
}

// Virtual is a simulated adapter backed entirely by in-memory state.
type Virtual struct {
	id string
	cb adapter.Callbacks

	// latency is injected before each pull operation to mimic network I/O.
	latency time.Duration

	mu       sync.RWMutex
	started  bool
	entities map[string]*entity
	order    []string
}

// New constructs a virtual adapter from a config blob. Recognized keys:
//
//	latency_ms  number   artificial delay per observe/query/execute
//	entities    []map    seeded entities, each with id, name, property,
//	                     and optional role, features, state, items
func New(id string, config map[string]any, cb adapter.Callbacks) (adapter.Adapter, error) {
	v := &Virtual{
		id:       id,
		cb:       cb,
		entities: make(map[string]*entity),
	}

	if ms, ok := toFloat(config["latency_ms"]); ok {
		v.latency = time.Duration(ms * float64(time.Millisecond))
	}

	rawEntities, _ := config["entities"].([]any)
	for i, raw := range rawEntities {
		spec, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("virtual adapter %s: entities[%d] is not a map", id, i)
		}
		ent, err := parseEntity(spec)
		if err != nil {
			return nil, fmt.Errorf("virtual adapter %s: entities[%d]: %w", id, i, err)
		}
		if _, exists := v.entities[ent.info.ID]; exists {
			return nil, fmt.Errorf("virtual adapter %s: duplicate entity id %q", id, ent.info.ID)
		}
		v.entities[ent.info.ID] = ent
		v.order = append(v.order, ent.info.ID)
	}

	return v, nil
}

func parseEntity(spec map[string]any) (*entity, error) {
	id, _ := spec["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("missing entity id")
	}
	name, _ := spec["name"].(string)
	if name == "" {
		name = id
	}

	propName, _ := spec["property"].(string)
	prop := property.Name(propName)
	schema, err := property.Schema(prop)
	if err != nil {
		return nil, err
	}

	ent := &entity{
		info: adapter.Entity{
			ID:       id,
			Name:     name,
			Property: prop,
		},
		state: make(map[string]any),
	}

	if role, ok := spec["role"].(string); ok && role != "" {
		if err := property.ValidateRole(prop, property.Role(role)); err != nil {
			return nil, err
		}
		ent.info.Role = property.Role(role)
	} else if len(schema.Roles) > 0 {
		ent.info.Role = schema.Roles[0]
	}

	if rawFeatures, ok := spec["features"].([]any); ok {
		for _, f := range rawFeatures {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("entity %s: feature is not a string", id)
			}
			ent.info.Features = append(ent.info.Features, property.Feature(s))
		}
		if err := property.ValidateFeatures(prop, ent.info.Features); err != nil {
			return nil, err
		}
	}

	if state, ok := spec["state"].(map[string]any); ok {
		for k, val := range state {
			ent.state[k] = val
		}
	}

	if rawItems, ok := spec["items"].([]any); ok {
		for j, ri := range rawItems {
			im, ok := ri.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("entity %s: items[%d] is not a map", id, j)
			}
			item := adapter.Item{}
			item.ID, _ = im["id"].(string)
			if item.ID == "" {
				item.ID = fmt.Sprintf("%s-item-%d", id, j)
			}
			if data, ok := im["data"].(map[string]any); ok {
				item.Data = data
			}
			if s, ok := im["starts_at"].(string); ok {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return nil, fmt.Errorf("entity %s: items[%d] starts_at: %w", id, j, err)
				}
				item.StartsAt = &t
			}
			if s, ok := im["ends_at"].(string); ok {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					return nil, fmt.Errorf("entity %s: items[%d] ends_at: %w", id, j, err)
				}
				item.EndsAt = &t
			}
			ent.items = append(ent.items, item)
		}
	}

	return ent, nil
}

// Start marks the adapter online, registers its entities and reports
// reachability.
func (v *Virtual) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.started {
		v.mu.Unlock()
		return fmt.Errorf("virtual adapter %s already started", v.id)
	}
	v.started = true
	entities := make([]adapter.Entity, 0, len(v.order))
	for _, id := range v.order {
		entities = append(entities, v.entities[id].info)
	}
	v.mu.Unlock()

	if v.cb != nil {
		if len(entities) > 0 {
			v.cb.EntitiesRegistered(v.id, entities)
		}
		v.cb.ReachabilityChanged(v.id, true)
		v.cb.Log(v.id, adapter.LogEntry{
			Time:    time.Now(),
			Level:   "info",
			Message: fmt.Sprintf("virtual adapter started with %d entities", len(entities)),
		})
	}
	return nil
}

// Stop marks the adapter offline.
func (v *Virtual) Stop(ctx context.Context) error {
	v.mu.Lock()
	wasStarted := v.started
	v.started = false
	v.mu.Unlock()

	if wasStarted && v.cb != nil {
		v.cb.ReachabilityChanged(v.id, false)
	}
	return nil
}

// Observe returns a copy of the entity's in-memory state.
func (v *Virtual) Observe(ctx context.Context, entityID string, prop property.Name) (map[string]any, error) {
	if err := v.simulate(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	ent, err := v.lookupLocked(entityID, prop)
	if err != nil {
		return nil, err
	}
	return copyState(ent.state), nil
}

// Query returns the entity's configured collection items, filtered by the
// optional "from"/"to" RFC3339 params against each item's start time.
func (v *Virtual) Query(ctx context.Context, entityID string, prop property.Name, params map[string]any) (adapter.QueryResult, error) {
	if err := v.simulate(ctx); err != nil {
		return adapter.QueryResult{}, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	ent, err := v.lookupLocked(entityID, prop)
	if err != nil {
		return adapter.QueryResult{}, err
	}

	from, to, err := parseRange(params)
	if err != nil {
		return adapter.QueryResult{}, err
	}

	var items []adapter.Item
	for _, item := range ent.items {
		if item.StartsAt != nil {
			if from != nil && item.StartsAt.Before(*from) {
				continue
			}
			if to != nil && item.StartsAt.After(*to) {
				continue
			}
		}
		items = append(items, item)
	}
	return adapter.QueryResult{Items: items}, nil
}

// Execute merges validated command params into the entity's state and
// pushes the resulting state change.
func (v *Virtual) Execute(ctx context.Context, entityID string, prop property.Name, params map[string]any) (adapter.ExecuteResult, error) {
	if err := v.simulate(ctx); err != nil {
		return adapter.ExecuteResult{}, err
	}

	if err := property.ValidateCommand(prop, params); err != nil {
		return adapter.ExecuteResult{Success: false, Error: err.Error()}, nil
	}

	v.mu.Lock()
	ent, err := v.lookupLocked(entityID, prop)
	if err != nil {
		v.mu.Unlock()
		return adapter.ExecuteResult{}, err
	}

	previous := copyState(ent.state)
	for k, val := range params {
		ent.state[k] = val
	}
	state := copyState(ent.state)
	v.mu.Unlock()

	if v.cb != nil {
		v.cb.StateChanged(v.id, entityID, prop, state, previous)
	}
	return adapter.ExecuteResult{Success: true}, nil
}

// SetState replaces an entity's state directly and pushes the change,
// simulating a device-originated update.
func (v *Virtual) SetState(entityID string, state map[string]any) error {
	v.mu.Lock()
	ent, ok := v.entities[entityID]
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", adapter.ErrEntityNotFound, entityID)
	}
	if !v.started {
		v.mu.Unlock()
		return adapter.ErrNotStarted
	}

	previous := copyState(ent.state)
	ent.state = copyState(state)
	prop := ent.info.Property
	pushed := copyState(ent.state)
	v.mu.Unlock()

	if v.cb != nil {
		v.cb.StateChanged(v.id, entityID, prop, pushed, previous)
	}
	return nil
}

// SetReachable flips the simulated downstream connection.
func (v *Virtual) SetReachable(reachable bool) {
	if v.cb != nil {
		v.cb.ReachabilityChanged(v.id, reachable)
	}
}

func (v *Virtual) lookupLocked(entityID string, prop property.Name) (*entity, error) {
	if !v.started {
		return nil, adapter.ErrNotStarted
	}
	ent, ok := v.entities[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", adapter.ErrEntityNotFound, entityID)
	}
	if ent.info.Property != prop {
		return nil, fmt.Errorf("%w: %s does not expose %s", adapter.ErrEntityNotFound, entityID, prop)
	}
	return ent, nil
}

// simulate applies the configured latency, honoring ctx cancellation.
func (v *Virtual) simulate(ctx context.Context) error {
	if v.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(v.latency):
		return nil
	}
}

func parseRange(params map[string]any) (from, to *time.Time, err error) {
	if s, ok := params["from"].(string); ok && s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from: %w", err)
		}
		from = &t
	}
	if s, ok := params["to"].(string); ok && s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to: %w", err)
		}
		to = &t
	}
	return from, to, nil
}

func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

// toFloat coerces JSON/YAML numeric decodings into a float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
