package virtual

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/property"
)

// recordingCallbacks captures callback invocations for assertions.
type recordingCallbacks struct {
	mu         sync.Mutex
	states     []stateEvent
	reachable  []bool
	registered [][]adapter.Entity
	logs       []adapter.LogEntry
}

type stateEvent struct {
	adapterID string
	entityID  string
	prop      property.Name
	state     map[string]any
	previous  map[string]any
}

func (r *recordingCallbacks) StateChanged(adapterID, entityID string, prop property.Name, state, previous map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, stateEvent{adapterID, entityID, prop, state, previous})
}

func (r *recordingCallbacks) ReachabilityChanged(adapterID string, reachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reachable = append(r.reachable, reachable)
}

func (r *recordingCallbacks) EntitiesRegistered(adapterID string, entities []adapter.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, entities)
}

func (r *recordingCallbacks) Log(adapterID string, entry adapter.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
}

func testConfig() map[string]any {
	return map[string]any{
		"entities": []any{
			map[string]any{
				"id":       "lamp-1",
				"name":     "Desk Lamp",
				"property": "illumination",
				"role":     "primary",
				"features": []any{"dimmable"},
				"state":    map[string]any{"on": false, "brightness": 0},
			},
			map[string]any{
				"id":       "cal-1",
				"name":     "House Calendar",
				"property": "schedule",
				"items": []any{
					map[string]any{
						"id":        "evt-1",
						"data":      map[string]any{"title": "cleaning"},
						"starts_at": "2026-09-01T10:00:00Z",
					},
					map[string]any{
						"id":        "evt-2",
						"data":      map[string]any{"title": "maintenance"},
						"starts_at": "2026-09-08T10:00:00Z",
					},
				},
			},
		},
	}
}

func newStarted(t *testing.T) (*Virtual, *recordingCallbacks) {
	t.Helper()
	cb := &recordingCallbacks{}
	a, err := New("vtest", testConfig(), cb)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	v := a.(*Virtual)
	if err := v.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return v, cb
}

func TestRegister(t *testing.T) {
	reg := adapter.NewRegistry()
	Register(reg)

	r, err := reg.Resolve(TypeName)
	if err != nil {
		t.Fatalf("Resolve(%q) error = %v", TypeName, err)
	}
	if r.Factory == nil {
		t.Fatal("registration has nil factory")
	}
}

func TestNew_InvalidProperty(t *testing.T) {
	cfg := map[string]any{
		"entities": []any{
			map[string]any{"id": "x", "property": "telepathy"},
		},
	}
	if _, err := New("vtest", cfg, nil); !errors.Is(err, property.ErrUnknownProperty) {
		t.Errorf("New() error = %v, want ErrUnknownProperty", err)
	}
}

func TestNew_DuplicateEntity(t *testing.T) {
	cfg := map[string]any{
		"entities": []any{
			map[string]any{"id": "x", "property": "illumination"},
			map[string]any{"id": "x", "property": "climate"},
		},
	}
	if _, err := New("vtest", cfg, nil); err == nil {
		t.Error("New() should reject duplicate entity ids")
	}
}

func TestStart_RegistersEntities(t *testing.T) {
	_, cb := newStarted(t)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.registered) != 1 {
		t.Fatalf("registered batches = %d, want 1", len(cb.registered))
	}
	if len(cb.registered[0]) != 2 {
		t.Fatalf("registered entities = %d, want 2", len(cb.registered[0]))
	}
	if cb.registered[0][0].ID != "lamp-1" {
		t.Errorf("first entity = %q, want lamp-1", cb.registered[0][0].ID)
	}
	if cb.registered[0][0].Role != property.RolePrimary {
		t.Errorf("lamp role = %q, want primary", cb.registered[0][0].Role)
	}
	// schedule entity role defaults to the domain's first role
	if cb.registered[0][1].Role != property.RolePrimary {
		t.Errorf("calendar role = %q, want primary", cb.registered[0][1].Role)
	}
	if len(cb.reachable) != 1 || !cb.reachable[0] {
		t.Errorf("reachable events = %v, want [true]", cb.reachable)
	}
}

func TestObserve(t *testing.T) {
	v, _ := newStarted(t)

	state, err := v.Observe(context.Background(), "lamp-1", property.Illumination)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if state["on"] != false {
		t.Errorf("state[on] = %v, want false", state["on"])
	}

	// Returned map is a copy; mutating it must not leak back.
	state["on"] = true
	again, err := v.Observe(context.Background(), "lamp-1", property.Illumination)
	if err != nil {
		t.Fatalf("second Observe() error = %v", err)
	}
	if again["on"] != false {
		t.Error("Observe() returned shared state map")
	}
}

func TestObserve_Errors(t *testing.T) {
	cb := &recordingCallbacks{}
	a, err := New("vtest", testConfig(), cb)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	v := a.(*Virtual)

	if _, err := v.Observe(context.Background(), "lamp-1", property.Illumination); !errors.Is(err, adapter.ErrNotStarted) {
		t.Errorf("Observe() before Start error = %v, want ErrNotStarted", err)
	}

	if err := v.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := v.Observe(context.Background(), "ghost", property.Illumination); !errors.Is(err, adapter.ErrEntityNotFound) {
		t.Errorf("Observe(ghost) error = %v, want ErrEntityNotFound", err)
	}
	if _, err := v.Observe(context.Background(), "lamp-1", property.Climate); !errors.Is(err, adapter.ErrEntityNotFound) {
		t.Errorf("Observe(wrong property) error = %v, want ErrEntityNotFound", err)
	}
}

func TestQuery_Range(t *testing.T) {
	v, _ := newStarted(t)

	res, err := v.Query(context.Background(), "cal-1", property.Schedule, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("unfiltered items = %d, want 2", len(res.Items))
	}

	res, err = v.Query(context.Background(), "cal-1", property.Schedule, map[string]any{
		"from": "2026-09-05T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Query(from) error = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "evt-2" {
		t.Errorf("filtered items = %v, want [evt-2]", res.Items)
	}

	if _, err := v.Query(context.Background(), "cal-1", property.Schedule, map[string]any{"from": "not-a-time"}); err == nil {
		t.Error("Query() should reject malformed range params")
	}
}

func TestExecute(t *testing.T) {
	v, cb := newStarted(t)

	res, err := v.Execute(context.Background(), "lamp-1", property.Illumination, map[string]any{
		"on":         true,
		"brightness": 80,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute() success = false, error = %q", res.Error)
	}

	state, err := v.Observe(context.Background(), "lamp-1", property.Illumination)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if state["on"] != true || state["brightness"] != 80 {
		t.Errorf("state after execute = %v", state)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.states) != 1 {
		t.Fatalf("state events = %d, want 1", len(cb.states))
	}
	ev := cb.states[0]
	if ev.entityID != "lamp-1" || ev.prop != property.Illumination {
		t.Errorf("event = %+v", ev)
	}
	if ev.previous["on"] != false {
		t.Errorf("previous[on] = %v, want false", ev.previous["on"])
	}
}

func TestExecute_InvalidCommand(t *testing.T) {
	v, _ := newStarted(t)

	res, err := v.Execute(context.Background(), "lamp-1", property.Illumination, map[string]any{
		"teleport": true,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, invalid commands report via result", err)
	}
	if res.Success {
		t.Error("Execute() should fail for unknown command field")
	}
	if res.Error == "" {
		t.Error("failed result should carry an error message")
	}
}

func TestSetState_Pushes(t *testing.T) {
	v, cb := newStarted(t)

	if err := v.SetState("lamp-1", map[string]any{"on": true, "brightness": 100}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.states) != 1 {
		t.Fatalf("state events = %d, want 1", len(cb.states))
	}
	if cb.states[0].state["brightness"] != 100 {
		t.Errorf("pushed state = %v", cb.states[0].state)
	}
}

func TestStop_ReportsUnreachable(t *testing.T) {
	v, cb := newStarted(t)

	if err := v.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.reachable) != 2 || cb.reachable[1] {
		t.Errorf("reachable events = %v, want [true false]", cb.reachable)
	}

	if _, err := v.Observe(context.Background(), "lamp-1", property.Illumination); !errors.Is(err, adapter.ErrNotStarted) {
		t.Errorf("Observe() after Stop error = %v, want ErrNotStarted", err)
	}
}
