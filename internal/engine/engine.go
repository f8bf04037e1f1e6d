package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/property"
	"github.com/habitat-home/habitat-core/internal/space"
	"github.com/habitat-home/habitat-core/internal/state"
)

// Logger defines the logging interface for the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AdapterCaller is the pull surface the engine needs from the adapter
// supervisor.
type AdapterCaller interface {
	Observe(ctx context.Context, adapterID, entityID string, prop property.Name) (map[string]any, error)
	Query(ctx context.Context, adapterID, entityID string, prop property.Name, params map[string]any) (adapter.QueryResult, error)
	Execute(ctx context.Context, adapterID, entityID string, prop property.Name, params map[string]any) adapter.ExecuteResult
}

// EventSink receives one event per accepted state change, in acceptance
// order per source.
type EventSink interface {
	EmitStateChange(event Event)
}

// Engine resolves observe/query/influence requests against the space
// registry and adapter supervisor. It owns no state beyond the cache it
// writes through to the store.
type Engine struct {
	spaces *space.Registry
	caller AdapterCaller
	states state.Repository
	logger Logger

	sinkMu sync.RWMutex
	sink   EventSink
}

// New creates an engine over the given registry, adapter caller and
// state repository.
func New(spaces *space.Registry, caller AdapterCaller, states state.Repository) *Engine {
	return &Engine{
		spaces: spaces,
		caller: caller,
		states: states,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetEventSink wires the consumer of accepted state changes.
func (e *Engine) SetEventSink(sink EventSink) {
	e.sinkMu.Lock()
	e.sink = sink
	e.sinkMu.Unlock()
}

// Observe reads the state of every targeted (source, property) pair.
//
// Reachable sources get a live adapter call, falling back to cache (the
// result marked Cached) or an {"error": "unreachable"} payload when the
// call fails. Unreachable sources skip the live call and go straight to
// cache. Per-pair failures never abort the batch; only routing errors
// are returned.
func (e *Engine) Observe(ctx context.Context, spaceID string, target Target) ([]Observation, error) {
	pairs, err := e.resolveTargets(spaceID, target)
	if err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, e.observeOne(ctx, p))
	}
	return out, nil
}

// ObserveCached reads the targeted pairs from the store only. It never
// invokes an adapter call, for any input.
func (e *Engine) ObserveCached(ctx context.Context, spaceID string, target Target) ([]Observation, error) {
	pairs, err := e.resolveTargets(spaceID, target)
	if err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, e.cachedObservation(ctx, p))
	}
	return out, nil
}

// Query fetches collection items for a single resolved (source,
// property) pair and persists them keyed by (source, property, item).
func (e *Engine) Query(ctx context.Context, spaceID string, target Target, params map[string]any) (*QueryOutcome, error) {
	p, err := e.resolveSingle(spaceID, target)
	if err != nil {
		return nil, err
	}

	result, err := e.caller.Query(ctx, p.route.AdapterID, p.route.EntityID, p.prop, params)
	if err != nil {
		return nil, fmt.Errorf("querying %s/%s: %w", p.source.ID, p.prop, err)
	}

	if err := e.persistItems(ctx, p.source.ID, p.prop, result.Items); err != nil {
		e.logger.Warn("persisting query items failed",
			"source_id", p.source.ID,
			"property", p.prop,
			"error", err,
		)
	}

	outcome := &QueryOutcome{Source: p.source.ID, Property: p.prop, Items: make([]QueryItem, 0, len(result.Items))}
	for _, item := range result.Items {
		outcome.Items = append(outcome.Items, QueryItem{
			ID:       item.ID,
			Data:     item.Data,
			StartsAt: item.StartsAt,
			EndsAt:   item.EndsAt,
		})
	}
	return outcome, nil
}

// Influence dispatches a command.
//
// Single-source mode (target.Source set) resolves one route and issues
// one execute. Property fan-out mode dispatches independently to every
// source in the space exposing the property. Either way the result has
// exactly one entry per targeted source; adapter failures land in the
// entry, never as a returned error.
func (e *Engine) Influence(ctx context.Context, spaceID string, target Target, params map[string]any) ([]CommandResult, error) {
	pairs, err := e.resolveTargets(spaceID, target)
	if err != nil {
		return nil, err
	}

	out := make([]CommandResult, 0, len(pairs))
	for _, p := range pairs {
		result := e.caller.Execute(ctx, p.route.AdapterID, p.route.EntityID, p.prop, params)
		out = append(out, CommandResult{
			Source:  p.source.ID,
			Success: result.Success,
			Error:   result.Error,
		})
	}
	return out, nil
}

// Capabilities projects what is controllable. With a space id it covers
// that space; with an empty id it covers every space. Pure read, no
// adapter calls.
func (e *Engine) Capabilities(spaceID string) ([]SpaceCapabilities, error) {
	var spaces []space.Space
	if spaceID != "" {
		sp := e.spaces.GetSpace(spaceID)
		if sp == nil {
			return nil, fmt.Errorf("%w: %s", ErrSpaceNotFound, spaceID)
		}
		spaces = []space.Space{*sp}
	} else {
		spaces = e.spaces.GetAllSpaces()
	}

	out := make([]SpaceCapabilities, 0, len(spaces))
	for _, sp := range spaces {
		caps := SpaceCapabilities{
			Space:      sp.ID,
			Name:       sp.Name,
			Properties: make(map[property.Name][]SourceCapability),
		}
		for _, src := range e.spaces.GetSourcesForSpace(sp.ID) {
			for _, sprop := range src.Properties {
				caps.Properties[sprop.Property] = append(caps.Properties[sprop.Property], SourceCapability{
					Source:       src.ID,
					Name:         src.Name,
					Role:         sprop.Role,
					Mounting:     sprop.Mounting,
					Features:     sprop.Features,
					Reachable:    src.Reachable,
					CommandHints: sprop.CommandHints,
				})
			}
		}
		out = append(out, caps)
	}
	return out, nil
}

// HandleStateChange is the inbound push path from the supervisor.
//
// The (adapter, entity) pair is resolved back to its provisioned source;
// pushes for unprovisioned entities are silently dropped, since
// provisioning is an explicit separate step. Accepted changes are
// persisted with a fresh timestamp and emitted as one event.
func (e *Engine) HandleStateChange(adapterID, entityID string, prop property.Name, stateData, previous map[string]any) {
	sp, src := e.spaces.ResolveEntity(adapterID, entityID)
	if sp == nil || src == nil {
		e.logger.Debug("dropping state change for unprovisioned entity",
			"adapter_id", adapterID,
			"entity_id", entityID,
			"property", prop,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if previous == nil {
		if rec, err := e.states.GetState(ctx, src.ID, prop); err == nil {
			previous = rec.State
		}
	}

	now := time.Now().UTC()
	rec := &state.Record{
		SourceID:      src.ID,
		Property:      prop,
		State:         stateData,
		PreviousState: previous,
		Timestamp:     now,
	}
	if err := e.states.UpsertState(ctx, rec); err != nil {
		e.logger.Error("persisting state change failed",
			"source_id", src.ID,
			"property", prop,
			"error", err,
		)
	}

	e.emit(Event{
		Space:         sp.ID,
		Source:        src.ID,
		Property:      prop,
		State:         stateData,
		PreviousState: previous,
		Timestamp:     now,
	})
}

// SeedState performs one live observe for a (source, property) pair and
// persists the result. Used by the facade's cache seeding; failures are
// returned for the caller to log, they are never fatal.
func (e *Engine) SeedState(ctx context.Context, sourceID string, prop property.Name) error {
	src := e.spaces.GetSource(sourceID)
	if src == nil {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	route, ok := e.spaces.GetSourceRoute(sourceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoute, sourceID)
	}

	stateData, err := e.caller.Observe(ctx, route.AdapterID, route.EntityID, prop)
	if err != nil {
		return fmt.Errorf("seeding %s/%s: %w", sourceID, prop, err)
	}

	return e.states.UpsertState(ctx, &state.Record{
		SourceID:  sourceID,
		Property:  prop,
		State:     stateData,
		Timestamp: time.Now().UTC(),
	})
}

// HasCachedState reports whether a cache entry exists for the pair.
func (e *Engine) HasCachedState(ctx context.Context, sourceID string, prop property.Name) bool {
	_, err := e.states.GetState(ctx, sourceID, prop)
	return err == nil
}

// pair is one resolved (source, property, route) triple.
type pair struct {
	source *space.Source
	prop   property.Name
	route  space.Route
}

// resolveTargets expands a target into routed pairs. Routing problems
// are hard errors here; everything downstream degrades per pair.
func (e *Engine) resolveTargets(spaceID string, target Target) ([]pair, error) {
	sp := e.spaces.GetSpace(spaceID)
	if sp == nil {
		return nil, fmt.Errorf("%w: %s", ErrSpaceNotFound, spaceID)
	}

	if target.Source != "" {
		p, err := e.resolveSource(sp.ID, target)
		if err != nil {
			return nil, err
		}
		return []pair{*p}, nil
	}

	if target.Property == "" {
		return nil, ErrInvalidTarget
	}

	sources := e.spaces.GetSourcesForProperty(spaceID, target.Property)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s in space %s", ErrPropertyNotFound, target.Property, spaceID)
	}

	pairs := make([]pair, 0, len(sources))
	for i := range sources {
		src := sources[i]
		route, ok := e.spaces.GetSourceRoute(src.ID)
		if !ok {
			// Fan-out tolerates an unrouted source; the caller still
			// gets an entry for it.
			route = space.Route{}
		}
		pairs = append(pairs, pair{source: &src, prop: target.Property, route: route})
	}
	return pairs, nil
}

// resolveSingle resolves a target to exactly one pair: the explicit
// source, or the first source in the space exposing the property.
func (e *Engine) resolveSingle(spaceID string, target Target) (*pair, error) {
	pairs, err := e.resolveTargets(spaceID, target)
	if err != nil {
		return nil, err
	}
	return &pairs[0], nil
}

func (e *Engine) resolveSource(spaceID string, target Target) (*pair, error) {
	src := e.spaces.GetSource(target.Source)
	if src == nil || src.SpaceID != spaceID {
		return nil, fmt.Errorf("%w: %s in space %s", ErrSourceNotFound, target.Source, spaceID)
	}

	prop := target.Property
	if prop == "" {
		if len(src.Properties) == 0 {
			return nil, fmt.Errorf("%w: source %s exposes no properties", ErrPropertyNotFound, src.ID)
		}
		prop = src.Properties[0].Property
	}

	route, ok := e.spaces.GetSourceRoute(src.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, src.ID)
	}
	return &pair{source: src, prop: prop, route: route}, nil
}

// observeOne applies the two-tier fallback for one pair.
func (e *Engine) observeOne(ctx context.Context, p pair) Observation {
	if p.source.Reachable && p.route.AdapterID != "" {
		stateData, err := e.caller.Observe(ctx, p.route.AdapterID, p.route.EntityID, p.prop)
		if err == nil {
			return Observation{
				Source:    p.source.ID,
				Property:  p.prop,
				State:     stateData,
				Reachable: true,
				Timestamp: time.Now().UTC(),
			}
		}
		e.logger.Debug("live observe failed, falling back to cache",
			"source_id", p.source.ID,
			"property", p.prop,
			"error", err,
		)
	}
	return e.cachedObservation(ctx, p)
}

// cachedObservation serves one pair from the store only.
func (e *Engine) cachedObservation(ctx context.Context, p pair) Observation {
	obs := Observation{
		Source:    p.source.ID,
		Property:  p.prop,
		Reachable: p.source.Reachable,
	}

	rec, err := e.states.GetState(ctx, p.source.ID, p.prop)
	if err != nil {
		if !errors.Is(err, state.ErrStateNotFound) {
			e.logger.Warn("reading cached state failed",
				"source_id", p.source.ID,
				"property", p.prop,
				"error", err,
			)
		}
		obs.State = map[string]any{"error": "unreachable"}
		return obs
	}

	obs.State = rec.State
	obs.Cached = true
	obs.Timestamp = rec.Timestamp
	return obs
}

// persistItems writes returned collection items through to the store.
func (e *Engine) persistItems(ctx context.Context, sourceID string, prop property.Name, items []adapter.Item) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	records := make([]state.CollectionItem, 0, len(items))
	for _, item := range items {
		records = append(records, state.CollectionItem{
			SourceID:  sourceID,
			Property:  prop,
			ItemID:    item.ID,
			Data:      item.Data,
			StartsAt:  item.StartsAt,
			EndsAt:    item.EndsAt,
			FetchedAt: now,
		})
	}
	return e.states.UpsertItems(ctx, records)
}

func (e *Engine) emit(event Event) {
	e.sinkMu.RLock()
	sink := e.sink
	e.sinkMu.RUnlock()
	if sink != nil {
		sink.EmitStateChange(event)
	}
}
