package habitat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/engine"
	"github.com/habitat-home/habitat-core/internal/property"
	"github.com/habitat-home/habitat-core/internal/secrets"
	"github.com/habitat-home/habitat-core/internal/space"
	"github.com/habitat-home/habitat-core/internal/state"
	"github.com/habitat-home/habitat-core/internal/supervisor"
)

// memoryGraph is an in-memory GraphStore and AdapterStore.
type memoryGraph struct {
	mu       sync.Mutex
	spaces   []space.Space
	sources  []space.Source
	props    []space.SourceProperty
	adapters []supervisor.AdapterConfig
	listErr  error
}

func (m *memoryGraph) ListSpaces(ctx context.Context) ([]space.Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]space.Space(nil), m.spaces...), nil
}

func (m *memoryGraph) ListSources(ctx context.Context) ([]space.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]space.Source(nil), m.sources...), nil
}

func (m *memoryGraph) ListSourceProperties(ctx context.Context) ([]space.SourceProperty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]space.SourceProperty(nil), m.props...), nil
}

func (m *memoryGraph) ListAdapters(ctx context.Context) ([]supervisor.AdapterConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]supervisor.AdapterConfig(nil), m.adapters...), nil
}

// memoryStates is an in-memory state.Repository.
type memoryStates struct {
	mu     sync.Mutex
	states map[string]state.Record
	items  map[string]state.CollectionItem
}

func newMemoryStates() *memoryStates {
	return &memoryStates{
		states: make(map[string]state.Record),
		items:  make(map[string]state.CollectionItem),
	}
}

func stateKey(sourceID string, prop property.Name) string {
	return sourceID + "/" + string(prop)
}

func (m *memoryStates) UpsertState(ctx context.Context, r *state.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey(r.SourceID, r.Property)] = *r
	return nil
}

func (m *memoryStates) GetState(ctx context.Context, sourceID string, prop property.Name) (*state.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.states[stateKey(sourceID, prop)]
	if !ok {
		return nil, state.ErrStateNotFound
	}
	return &rec, nil
}

func (m *memoryStates) ListStates(ctx context.Context) ([]state.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.Record, 0, len(m.states))
	for _, r := range m.states {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryStates) UpsertItems(ctx context.Context, items []state.CollectionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[stateKey(it.SourceID, it.Property)+"/"+it.ItemID] = it
	}
	return nil
}

func (m *memoryStates) ListItems(ctx context.Context, sourceID string, prop property.Name, from, to *time.Time) ([]state.CollectionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []state.CollectionItem
	for _, it := range m.items {
		if it.SourceID == sourceID && it.Property == prop {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memoryStates) PruneItems(ctx context.Context, sourceID string, prop property.Name, fetchedBefore time.Time) (int, error) {
	return 0, nil
}

// mockAdapter answers observes with {"on": true} and queries with one item.
type mockAdapter struct {
	h  *harness
	id string
}

func (m *mockAdapter) Start(ctx context.Context) error {
	m.h.mu.Lock()
	defer m.h.mu.Unlock()
	return m.h.startErr[m.id]
}

func (m *mockAdapter) Stop(ctx context.Context) error { return nil }

func (m *mockAdapter) Observe(ctx context.Context, entityID string, prop property.Name) (map[string]any, error) {
	m.h.mu.Lock()
	m.h.observeCounts[entityID]++
	m.h.mu.Unlock()
	return map[string]any{"on": true}, nil
}

func (m *mockAdapter) Query(ctx context.Context, entityID string, prop property.Name, params map[string]any) (adapter.QueryResult, error) {
	m.h.mu.Lock()
	m.h.queryCounts[entityID]++
	m.h.mu.Unlock()
	return adapter.QueryResult{Items: []adapter.Item{{ID: "evt-1", Data: map[string]any{"summary": "standup"}}}}, nil
}

func (m *mockAdapter) Execute(ctx context.Context, entityID string, prop property.Name, params map[string]any) (adapter.ExecuteResult, error) {
	return adapter.ExecuteResult{Success: true}, nil
}

// fakeBus records published messages.
type fakeBus struct {
	mu       sync.Mutex
	messages []busMessage
	err      error
}

type busMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (b *fakeBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, busMessage{topic, payload, qos, retained})
	return nil
}

func (b *fakeBus) byTopic(topic string) []busMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busMessage
	for _, m := range b.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// fakeRecorder records state-change writes.
type fakeRecorder struct {
	mu     sync.Mutex
	writes []string
}

func (r *fakeRecorder) WriteStateChange(spaceID, sourceID, property string, state map[string]any, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, spaceID+"/"+sourceID+"/"+property)
}

type harness struct {
	hab    *Habitat
	spaces *space.Registry
	eng    *engine.Engine
	sup    *supervisor.Supervisor
	graph  *memoryGraph
	states *memoryStates

	mu            sync.Mutex
	startErr      map[string]error
	observeCounts map[string]int
	queryCounts   map[string]int
}

// newHarness builds the full stack over in-memory stores: living_room
// with one light via hue-1, bedroom with one calendar via caldav-1.
func newHarness(opts Options) *harness {
	if opts.ReseedInterval == 0 {
		opts.ReseedInterval = time.Hour
	}

	h := &harness{
		spaces: space.NewRegistry(),
		states: newMemoryStates(),
		graph: &memoryGraph{
			spaces: []space.Space{
				{ID: "living_room", Name: "Living Room", Slug: "living-room"},
				{ID: "bedroom", Name: "Bedroom", Slug: "bedroom"},
			},
			sources: []space.Source{
				{ID: "lr-light", SpaceID: "living_room", Name: "Light", AdapterID: "hue-1", EntityID: "light-7"},
				{ID: "br-cal", SpaceID: "bedroom", Name: "Calendar", AdapterID: "caldav-1", EntityID: "cal-1"},
			},
			props: []space.SourceProperty{
				{SourceID: "lr-light", Property: property.Illumination, Role: property.RolePrimary},
				{SourceID: "br-cal", Property: property.Schedule, Role: property.RolePrimary},
			},
			adapters: []supervisor.AdapterConfig{
				{ID: "hue-1", Type: "mock", DisplayName: "Hue Bridge"},
				{ID: "caldav-1", Type: "mock", DisplayName: "Calendar"},
			},
		},
		startErr:      make(map[string]error),
		observeCounts: make(map[string]int),
		queryCounts:   make(map[string]int),
	}

	areg := adapter.NewRegistry()
	areg.Register("mock", adapter.Registration{
		Factory: func(id string, config map[string]any, cb adapter.Callbacks) (adapter.Adapter, error) {
			return &mockAdapter{h: h, id: id}, nil
		},
	})

	h.sup = supervisor.New(areg, h.spaces, secrets.Static{}, supervisor.Options{})
	h.eng = engine.New(h.spaces, h.sup, h.states)
	h.sup.SetStateHandler(h.eng)
	h.hab = New(h.spaces, h.eng, h.sup, Repositories{Spaces: h.graph, Adapters: h.graph}, opts)
	return h
}

func (h *harness) observes(entityID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.observeCounts[entityID]
}

func TestStart(t *testing.T) {
	h := newHarness(Options{})
	defer h.hab.Stop(context.Background())

	if err := h.hab.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := len(h.spaces.GetAllSpaces()); got != 2 {
		t.Errorf("loaded spaces = %d, want 2", got)
	}
	if got := len(h.sup.RunningAdapterIDs()); got != 2 {
		t.Errorf("running adapters = %d, want 2", got)
	}

	// Cache seeded for every (source, property) pair.
	if !h.eng.HasCachedState(context.Background(), "lr-light", property.Illumination) {
		t.Error("lr-light state not seeded")
	}
	if !h.eng.HasCachedState(context.Background(), "br-cal", property.Schedule) {
		t.Error("br-cal state not seeded")
	}
}

func TestStart_GraphLoadFailure(t *testing.T) {
	h := newHarness(Options{})
	h.graph.listErr = fmt.Errorf("disk gone")

	if err := h.hab.Start(context.Background()); err == nil {
		t.Fatal("Start should fail when configuration cannot be loaded")
	}
}

func TestStart_AdapterFailureTolerated(t *testing.T) {
	h := newHarness(Options{})
	h.startErr["caldav-1"] = fmt.Errorf("upstream 503")
	defer h.hab.Stop(context.Background())

	if err := h.hab.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ids := h.sup.RunningAdapterIDs()
	if len(ids) != 1 || ids[0] != "hue-1" {
		t.Errorf("running adapters = %v, want [hue-1]", ids)
	}

	// Sources behind the healthy adapter are still seeded.
	if !h.eng.HasCachedState(context.Background(), "lr-light", property.Illumination) {
		t.Error("lr-light state not seeded despite caldav-1 failure")
	}
}

func TestReload_SeedsOnlyMissing(t *testing.T) {
	h := newHarness(Options{})
	defer h.hab.Stop(context.Background())

	if err := h.hab.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.observes("light-7"); got != 1 {
		t.Fatalf("observes(light-7) after start = %d, want 1", got)
	}
	before, err := h.states.GetState(context.Background(), "lr-light", property.Illumination)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	// A new source appears in the store.
	h.graph.mu.Lock()
	h.graph.sources = append(h.graph.sources, space.Source{
		ID: "lr-lamp", SpaceID: "living_room", Name: "Lamp", AdapterID: "hue-1", EntityID: "light-8",
	})
	h.graph.props = append(h.graph.props, space.SourceProperty{
		SourceID: "lr-lamp", Property: property.Illumination, Role: property.RolePrimary,
	})
	h.graph.mu.Unlock()

	if err := h.hab.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// Only the new source is seeded; the existing entry is untouched.
	if got := h.observes("light-8"); got != 1 {
		t.Errorf("observes(light-8) = %d, want 1", got)
	}
	if got := h.observes("light-7"); got != 1 {
		t.Errorf("observes(light-7) after reload = %d, want 1 (no reseed)", got)
	}
	after, err := h.states.GetState(context.Background(), "lr-light", property.Illumination)
	if err != nil {
		t.Fatalf("GetState after reload: %v", err)
	}
	if !after.Timestamp.Equal(before.Timestamp) {
		t.Error("existing cache entry timestamp changed on reload")
	}

	// Rebuilding the graph must not strand running adapters as unreachable.
	if src := h.spaces.GetSource("lr-light"); src == nil || !src.Reachable {
		t.Error("source behind a running adapter should be reachable after reload")
	}
}

func TestReseedCollections(t *testing.T) {
	h := newHarness(Options{})
	defer h.hab.Stop(context.Background())

	if err := h.hab.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.hab.reseedCollections(context.Background())

	// Only the range-query domain gets a collection refresh.
	h.mu.Lock()
	calQueries := h.queryCounts["cal-1"]
	lightQueries := h.queryCounts["light-7"]
	h.mu.Unlock()
	if calQueries != 1 {
		t.Errorf("queries(cal-1) = %d, want 1", calQueries)
	}
	if lightQueries != 0 {
		t.Errorf("queries(light-7) = %d, want 0", lightQueries)
	}

	items, err := h.states.ListItems(context.Background(), "br-cal", property.Schedule, nil, nil)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].ItemID != "evt-1" {
		t.Errorf("cached items = %v, want [evt-1]", items)
	}
}

func TestEmitStateChange_FanOut(t *testing.T) {
	h := newHarness(Options{})
	bus := &fakeBus{}
	rec := &fakeRecorder{}
	h.hab.SetPublisher(bus)
	h.hab.SetRecorder(rec)

	var mu sync.Mutex
	var seen []engine.Event
	h.hab.Subscribe(func(evt engine.Event) {
		mu.Lock()
		seen = append(seen, evt)
		mu.Unlock()
	})

	evt := engine.Event{
		Space:     "living_room",
		Source:    "lr-light",
		Property:  property.Illumination,
		State:     map[string]any{"on": true, "brightness": 80.0},
		Timestamp: time.Now().UTC(),
	}
	h.hab.EmitStateChange(evt)

	events := h.hab.RecentEvents(0)
	if len(events) != 1 || events[0].Source != "lr-light" {
		t.Errorf("retained events = %v", events)
	}

	msgs := bus.byTopic("habitat/event/living_room/lr-light/illumination")
	if len(msgs) != 1 {
		t.Fatalf("published = %v, want one event message", bus.messages)
	}
	if msgs[0].qos != 1 || msgs[0].retained {
		t.Errorf("qos/retained = %d/%v, want 1/false", msgs[0].qos, msgs[0].retained)
	}
	var decoded engine.Event
	if err := json.Unmarshal(msgs[0].payload, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded.Source != "lr-light" || decoded.State["on"] != true {
		t.Errorf("decoded payload = %+v", decoded)
	}

	rec.mu.Lock()
	writes := append([]string(nil), rec.writes...)
	rec.mu.Unlock()
	if len(writes) != 1 || writes[0] != "living_room/lr-light/illumination" {
		t.Errorf("recorder writes = %v", writes)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0].Source != "lr-light" {
		t.Errorf("subscriber saw = %v", seen)
	}
}

func TestEmitStateChange_NoSinks(t *testing.T) {
	h := newHarness(Options{})

	// No publisher, no recorder: the event is still retained.
	h.hab.EmitStateChange(engine.Event{Space: "living_room", Source: "lr-light", Property: property.Illumination})

	if got := len(h.hab.RecentEvents(0)); got != 1 {
		t.Errorf("retained events = %d, want 1", got)
	}
}

func TestEmitStateChange_PublishFailureAbsorbed(t *testing.T) {
	h := newHarness(Options{})
	bus := &fakeBus{err: fmt.Errorf("broker down")}
	h.hab.SetPublisher(bus)

	h.hab.EmitStateChange(engine.Event{Space: "living_room", Source: "lr-light", Property: property.Illumination})

	if got := len(h.hab.RecentEvents(0)); got != 1 {
		t.Errorf("retained events = %d, want 1", got)
	}
}

func TestPublishAdapterLog(t *testing.T) {
	h := newHarness(Options{})

	entry := adapter.LogEntry{Time: time.Now().UTC(), Level: "info", Message: "poll ok"}

	// Without a bus this is a no-op.
	h.hab.PublishAdapterLog("hue-1", entry)

	bus := &fakeBus{}
	h.hab.SetPublisher(bus)
	h.hab.PublishAdapterLog("hue-1", entry)

	msgs := bus.byTopic("habitat/adapter/hue-1/log")
	if len(msgs) != 1 {
		t.Fatalf("published = %v, want one log message", bus.messages)
	}
	var decoded adapter.LogEntry
	if err := json.Unmarshal(msgs[0].payload, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded.Message != "poll ok" {
		t.Errorf("decoded message = %q", decoded.Message)
	}
}

func TestStop(t *testing.T) {
	h := newHarness(Options{})

	if err := h.hab.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.hab.Stop(context.Background())

	if ids := h.sup.RunningAdapterIDs(); len(ids) != 0 {
		t.Errorf("running adapters after stop = %v, want none", ids)
	}

	// Stop is safe to call again.
	h.hab.Stop(context.Background())
}

func TestReseedLoop_Ticks(t *testing.T) {
	h := newHarness(Options{ReseedInterval: 20 * time.Millisecond})
	defer h.hab.Stop(context.Background())

	if err := h.hab.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		n := h.queryCounts["cal-1"]
		h.mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reseed loop never refreshed the collection cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
