package habitat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/engine"
	"github.com/habitat-home/habitat-core/internal/infrastructure/mqtt"
	"github.com/habitat-home/habitat-core/internal/property"
	"github.com/habitat-home/habitat-core/internal/space"
	"github.com/habitat-home/habitat-core/internal/supervisor"
)

// Logger is the minimal logging interface the facade needs.
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

// Publisher is the outbound event-bus boundary; the MQTT client
// implements it. All publishing is best-effort.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventRecorder is the optional time-series sink for state changes;
// the InfluxDB client implements it.
type EventRecorder interface {
	WriteStateChange(spaceID, sourceID, property string, state map[string]any, timestamp time.Time)
}

// GraphStore is the slice of the space store the facade reads on boot
// and reload.
type GraphStore interface {
	ListSpaces(ctx context.Context) ([]space.Space, error)
	ListSources(ctx context.Context) ([]space.Source, error)
	ListSourceProperties(ctx context.Context) ([]space.SourceProperty, error)
}

// AdapterStore is the slice of the adapter store the facade reads on boot.
type AdapterStore interface {
	ListAdapters(ctx context.Context) ([]supervisor.AdapterConfig, error)
}

// Repositories bundles the persisted configuration the facade loads from.
type Repositories struct {
	Spaces   GraphStore
	Adapters AdapterStore
}

// Options tune facade behavior. Zero values pick defaults.
type Options struct {
	// EventBufferSize is the recent-event ring capacity.
	EventBufferSize int

	// ReseedInterval is the period of the collection-cache reseed timer.
	ReseedInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaultEventCapacity
	}
	if o.ReseedInterval == 0 {
		o.ReseedInterval = 5 * time.Minute
	}
}

// Habitat composes the registry, engine and supervisor into one unit with
// a managed lifecycle. It implements engine.EventSink and
// supervisor.LogPublisher.
type Habitat struct {
	spaces *space.Registry
	engine *engine.Engine
	super  *supervisor.Supervisor
	repos  Repositories
	opts   Options
	logger Logger

	ring   *eventRing
	topics mqtt.Topics

	// bus and recorder are optional outbound sinks.
	sinkMu   sync.RWMutex
	bus      Publisher
	recorder EventRecorder

	listenerMu sync.RWMutex
	listeners  []func(engine.Event)

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates the facade. Call Start to boot the system.
func New(spaces *space.Registry, eng *engine.Engine, super *supervisor.Supervisor, repos Repositories, opts Options) *Habitat {
	opts.applyDefaults()
	h := &Habitat{
		spaces: spaces,
		engine: eng,
		super:  super,
		repos:  repos,
		opts:   opts,
		logger: noopLogger{},
		ring:   newEventRing(opts.EventBufferSize),
	}
	eng.SetEventSink(h)
	super.SetLogPublisher(h)
	return h
}

// SetLogger replaces the default no-op logger.
func (h *Habitat) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// SetPublisher attaches the outbound event bus. May be left unset.
func (h *Habitat) SetPublisher(bus Publisher) {
	h.sinkMu.Lock()
	h.bus = bus
	h.sinkMu.Unlock()
}

// SetRecorder attaches the time-series sink. May be left unset.
func (h *Habitat) SetRecorder(rec EventRecorder) {
	h.sinkMu.Lock()
	h.recorder = rec
	h.sinkMu.Unlock()
}

// Subscribe registers an in-process listener for every accepted state
// change. Listeners are invoked synchronously in arrival order and must
// not block.
func (h *Habitat) Subscribe(fn func(engine.Event)) {
	h.listenerMu.Lock()
	h.listeners = append(h.listeners, fn)
	h.listenerMu.Unlock()
}

// Start boots the system: load persisted configuration, rebuild the
// space graph, start every configured adapter in parallel tolerating
// individual failures, best-effort seed the state cache, and begin the
// periodic collection reseed.
//
// Only configuration-load failures are returned; adapter start and
// seeding failures are logged and absorbed.
func (h *Habitat) Start(ctx context.Context) error {
	if err := h.loadGraph(ctx); err != nil {
		return err
	}

	cfgs, err := h.repos.Adapters.ListAdapters(ctx)
	if err != nil {
		return fmt.Errorf("loading adapter configs: %w", err)
	}

	h.startAdapters(ctx, cfgs)
	h.seedStates(ctx, false)
	h.startReseedLoop()

	h.logger.Info("habitat started",
		"spaces", len(h.spaces.GetAllSpaces()),
		"adapters", len(cfgs),
	)
	return nil
}

// Reload re-reads configuration and rebuilds the space graph, re-applies
// reachability for adapters that are still running, and seeds state only
// for sources that have no cached entry yet. Existing cache entries are
// left untouched.
func (h *Habitat) Reload(ctx context.Context) error {
	if err := h.loadGraph(ctx); err != nil {
		return err
	}

	// Load resets runtime reachability; running adapters are still live.
	for _, id := range h.super.RunningAdapterIDs() {
		h.spaces.SetAdapterReachability(id, true)
	}

	h.seedStates(ctx, true)

	h.logger.Info("habitat reloaded", "spaces", len(h.spaces.GetAllSpaces()))
	return nil
}

// Stop halts the reseed loop and stops every running adapter.
func (h *Habitat) Stop(ctx context.Context) {
	h.stopReseedLoop()
	h.super.StopAll(ctx)
	h.logger.Info("habitat stopped")
}

// RecentEvents returns up to limit retained events, newest last.
// limit <= 0 returns the whole ring.
func (h *Habitat) RecentEvents(limit int) []engine.Event {
	return h.ring.Recent(limit)
}

// EmitStateChange implements engine.EventSink: retain the event, fan it
// out to the bus, the recorder and in-process subscribers.
func (h *Habitat) EmitStateChange(evt engine.Event) {
	h.ring.Append(evt)

	h.sinkMu.RLock()
	bus := h.bus
	recorder := h.recorder
	h.sinkMu.RUnlock()

	if bus != nil {
		payload, err := json.Marshal(evt)
		if err == nil {
			topic := h.topics.Event(evt.Space, evt.Source, string(evt.Property))
			if err := bus.Publish(topic, payload, 1, false); err != nil {
				h.logger.Warn("event publish failed", "topic", topic, "error", err)
			}
		}
	}

	if recorder != nil {
		recorder.WriteStateChange(evt.Space, evt.Source, string(evt.Property), evt.State, evt.Timestamp)
	}

	h.listenerMu.RLock()
	listeners := h.listeners
	h.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(evt)
	}
}

// PublishAdapterLog implements supervisor.LogPublisher: forward adapter
// log entries to the bus.
func (h *Habitat) PublishAdapterLog(adapterID string, entry adapter.LogEntry) {
	h.sinkMu.RLock()
	bus := h.bus
	h.sinkMu.RUnlock()
	if bus == nil {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	topic := h.topics.AdapterLog(adapterID)
	if err := bus.Publish(topic, payload, 0, false); err != nil {
		h.logger.Debug("adapter log publish failed", "topic", topic, "error", err)
	}
}

// loadGraph rebuilds the in-memory space graph from the store.
func (h *Habitat) loadGraph(ctx context.Context) error {
	spaces, err := h.repos.Spaces.ListSpaces(ctx)
	if err != nil {
		return fmt.Errorf("loading spaces: %w", err)
	}
	sources, err := h.repos.Spaces.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	props, err := h.repos.Spaces.ListSourceProperties(ctx)
	if err != nil {
		return fmt.Errorf("loading source properties: %w", err)
	}

	h.spaces.Load(spaces, sources, props)
	return nil
}

// startAdapters starts every configured adapter in parallel. Each start
// settles independently; failures are logged, never propagated.
func (h *Habitat) startAdapters(ctx context.Context, cfgs []supervisor.AdapterConfig) {
	var wg sync.WaitGroup
	for _, cfg := range cfgs {
		wg.Add(1)
		go func(cfg supervisor.AdapterConfig) {
			defer wg.Done()
			if err := h.super.StartAdapter(ctx, cfg); err != nil {
				h.logger.Error("adapter start failed",
					"adapter_id", cfg.ID,
					"type", cfg.Type,
					"error", err,
				)
			}
		}(cfg)
	}
	wg.Wait()
}

// seedStates issues one live observe per (source, property) to warm the
// cache. With onlyMissing set, pairs that already have a cached entry
// are skipped. All failures are logged and absorbed; the two-tier read
// fallback recovers on first real read.
func (h *Habitat) seedStates(ctx context.Context, onlyMissing bool) {
	for _, sp := range h.spaces.GetAllSpaces() {
		for _, src := range h.spaces.GetSourcesForSpace(sp.ID) {
			for _, p := range src.Properties {
				if onlyMissing && h.engine.HasCachedState(ctx, src.ID, p.Property) {
					continue
				}
				if err := h.engine.SeedState(ctx, src.ID, p.Property); err != nil {
					h.logger.Debug("state seed failed",
						"source_id", src.ID,
						"property", p.Property,
						"error", err,
					)
				}
			}
		}
	}
}

// reseedCollections refreshes collection caches (range-query domains,
// e.g. calendar entries) for every exposing source.
func (h *Habitat) reseedCollections(ctx context.Context) {
	for _, sp := range h.spaces.GetAllSpaces() {
		for _, src := range h.spaces.GetSourcesForSpace(sp.ID) {
			for _, p := range src.Properties {
				if !property.HasFeature(p.Property, property.FeatureRangeQuery) {
					continue
				}
				target := engine.Target{Source: src.ID, Property: p.Property}
				if _, err := h.engine.Query(ctx, sp.ID, target, nil); err != nil {
					h.logger.Debug("collection reseed failed",
						"source_id", src.ID,
						"property", p.Property,
						"error", err,
					)
				}
			}
		}
	}
}

// startReseedLoop begins the periodic collection reseed.
func (h *Habitat) startReseedLoop() {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	if h.loopCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.loopCancel = cancel
	h.loopDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.opts.ReseedInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.reseedCollections(ctx)
			}
		}
	}()
}

// stopReseedLoop cancels the reseed loop and waits for it to exit.
func (h *Habitat) stopReseedLoop() {
	h.loopMu.Lock()
	cancel := h.loopCancel
	done := h.loopDone
	h.loopCancel = nil
	h.loopDone = nil
	h.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
