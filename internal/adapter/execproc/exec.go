package execproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/process"
	"github.com/habitat-home/habitat-core/internal/property"
)

// TypeName is the registry key for the exec adapter.
const TypeName = "exec"

// initTimeout bounds the child's handshake after each (re)start.
const initTimeout = 15 * time.Second

// Register adds the exec adapter type to the given registry.
func Register(reg *adapter.Registry) {
	reg.Register(TypeName, adapter.Registration{
		Factory: New,
		Capabilities: adapter.SetupCapabilities{
			Discovery: false,
			Pairing:   false,
		},
	})
}

// host abstracts the process manager so protocol handling is testable
// without spawning real processes.
type host interface {
	Start(ctx context.Context) error
	Stop() error
	WriteLine(line string) error
	PID() int
	RestartCount() int
}

// Exec hosts an adapter running as an external binary.
type Exec struct {
	id string
	cb adapter.Callbacks

	childConfig map[string]any

	proc host
	seq  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan message
	started bool
}

// New constructs an exec adapter from a config blob. Recognized keys:
//
//	binary    string    path to the child executable (required)
//	args      []string  command-line arguments
//	work_dir  string    working directory
//	env       []string  extra environment, key=value
//	restart   bool      restart on crash (default true)
//
// All remaining keys are forwarded to the child in the init handshake.
func New(id string, config map[string]any, cb adapter.Callbacks) (adapter.Adapter, error) {
	binary, _ := config["binary"].(string)
	if binary == "" {
		return nil, fmt.Errorf("exec adapter %s: missing binary", id)
	}

	var args []string
	if raw, ok := config["args"].([]any); ok {
		for _, a := range raw {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("exec adapter %s: args must be strings", id)
			}
			args = append(args, s)
		}
	}

	pcfg := process.DefaultConfig(id, binary, args)
	if wd, ok := config["work_dir"].(string); ok {
		pcfg.WorkDir = wd
	}
	if raw, ok := config["env"].([]any); ok {
		for _, e := range raw {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("exec adapter %s: env entries must be strings", id)
			}
			pcfg.Env = append(pcfg.Env, s)
		}
	}
	if restart, ok := config["restart"].(bool); ok {
		pcfg.RestartOnFailure = restart
	}

	childConfig := make(map[string]any)
	for k, v := range config {
		switch k {
		case "binary", "args", "work_dir", "env", "restart":
		default:
			childConfig[k] = v
		}
	}

	e := &Exec{
		id:          id,
		cb:          cb,
		childConfig: childConfig,
		pending:     make(map[int64]chan message),
	}

	pcfg.OnStdoutLine = e.handleLine
	pcfg.OnStderrLine = func(line string) {
		e.cb.Log(e.id, adapter.LogEntry{Time: time.Now(), Level: "info", Message: line})
	}
	pcfg.OnStart = e.onProcessStart
	pcfg.OnExit = e.onProcessExit

	e.proc = process.NewManager(pcfg)
	return e, nil
}

// Start launches the child and completes the init handshake.
func (e *Exec) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("exec adapter %s already started", e.id)
	}
	e.started = true
	e.mu.Unlock()

	if err := e.proc.Start(ctx); err != nil {
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		return fmt.Errorf("starting adapter host: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if _, err := e.call(initCtx, request{Op: opInit, Config: e.childConfig}); err != nil {
		_ = e.proc.Stop()
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		return fmt.Errorf("adapter host init: %w", err)
	}

	e.cb.ReachabilityChanged(e.id, true)
	return nil
}

// Stop asks the child to shut down, then stops the host process.
func (e *Exec) Stop(ctx context.Context) error {
	e.mu.Lock()
	wasStarted := e.started
	e.started = false
	e.mu.Unlock()

	if !wasStarted {
		return nil
	}

	// Best-effort: the process manager escalates to signals regardless.
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _ = e.call(stopCtx, request{Op: opStop})

	if err := e.proc.Stop(); err != nil {
		return fmt.Errorf("stopping adapter host: %w", err)
	}
	e.cb.ReachabilityChanged(e.id, false)
	return nil
}

// Observe asks the child for an entity's live state.
func (e *Exec) Observe(ctx context.Context, entityID string, prop property.Name) (map[string]any, error) {
	msg, err := e.call(ctx, request{Op: opObserve, EntityID: entityID, Property: prop})
	if err != nil {
		return nil, err
	}

	var state map[string]any
	if err := json.Unmarshal(msg.Result, &state); err != nil {
		return nil, fmt.Errorf("decoding observe result: %w", err)
	}
	return state, nil
}

// Query asks the child for collection items.
func (e *Exec) Query(ctx context.Context, entityID string, prop property.Name, params map[string]any) (adapter.QueryResult, error) {
	msg, err := e.call(ctx, request{Op: opQuery, EntityID: entityID, Property: prop, Params: params})
	if err != nil {
		return adapter.QueryResult{}, err
	}

	var result adapter.QueryResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return adapter.QueryResult{}, fmt.Errorf("decoding query result: %w", err)
	}
	return result, nil
}

// Execute asks the child to run a command. Command-level failures come
// back in the result; protocol and transport faults come back as errors.
func (e *Exec) Execute(ctx context.Context, entityID string, prop property.Name, params map[string]any) (adapter.ExecuteResult, error) {
	msg, err := e.call(ctx, request{Op: opExecute, EntityID: entityID, Property: prop, Params: params})
	if err != nil {
		return adapter.ExecuteResult{}, err
	}

	var result adapter.ExecuteResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return adapter.ExecuteResult{}, fmt.Errorf("decoding execute result: %w", err)
	}
	return result, nil
}

// PID returns the child's OS process id.
func (e *Exec) PID() int {
	return e.proc.PID()
}

// Restarts returns how many times the child has been restarted.
func (e *Exec) Restarts() int {
	return e.proc.RestartCount()
}

// call writes one request line and waits for the matching response.
func (e *Exec) call(ctx context.Context, req request) (message, error) {
	req.ID = e.seq.Add(1)

	ch := make(chan message, 1)
	e.mu.Lock()
	e.pending[req.ID] = ch
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, req.ID)
		e.mu.Unlock()
	}()

	line, err := json.Marshal(req)
	if err != nil {
		return message{}, fmt.Errorf("encoding request: %w", err)
	}
	if err := e.proc.WriteLine(string(line)); err != nil {
		return message{}, fmt.Errorf("%w: %v", adapter.ErrUnreachable, err)
	}

	select {
	case <-ctx.Done():
		return message{}, ctx.Err()
	case msg := <-ch:
		if msg.Error != "" {
			return message{}, fmt.Errorf("adapter %s: %s", e.id, msg.Error)
		}
		return msg, nil
	}
}

// handleLine routes one child stdout line: responses to their waiting
// caller, events to the callback surface. Malformed lines are logged
// and dropped.
func (e *Exec) handleLine(line string) {
	var msg message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		e.cb.Log(e.id, adapter.LogEntry{
			Time:    time.Now(),
			Level:   "warn",
			Message: fmt.Sprintf("dropping malformed protocol line: %v", err),
		})
		return
	}

	if msg.ID != 0 {
		e.mu.Lock()
		ch, ok := e.pending[msg.ID]
		if ok {
			delete(e.pending, msg.ID)
			ch <- msg
		}
		e.mu.Unlock()
		return
	}

	switch msg.Event {
	case eventStateChanged:
		e.cb.StateChanged(e.id, msg.EntityID, msg.Property, msg.State, msg.Previous)
	case eventReachability:
		e.cb.ReachabilityChanged(e.id, msg.Reachable)
	case eventEntities:
		e.cb.EntitiesRegistered(e.id, msg.Entities)
	case eventLog:
		ts := msg.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		level := msg.Level
		if level == "" {
			level = "info"
		}
		e.cb.Log(e.id, adapter.LogEntry{Time: ts, Level: level, Message: msg.Message})
	default:
		e.cb.Log(e.id, adapter.LogEntry{
			Time:    time.Now(),
			Level:   "warn",
			Message: fmt.Sprintf("unknown protocol event %q", msg.Event),
		})
	}
}

// onProcessStart re-runs the init handshake after a crash restart.
// The first start's handshake is driven synchronously by Start.
func (e *Exec) onProcessStart(pid int) {
	e.mu.Lock()
	restarting := e.started && e.seq.Load() > 0
	e.mu.Unlock()
	if !restarting {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		if _, err := e.call(ctx, request{Op: opInit, Config: e.childConfig}); err != nil {
			e.cb.Log(e.id, adapter.LogEntry{
				Time:    time.Now(),
				Level:   "error",
				Message: fmt.Sprintf("init after restart failed: %v", err),
			})
			return
		}
		e.cb.ReachabilityChanged(e.id, true)
	}()
}

// onProcessExit fails all in-flight calls and reports the adapter down.
func (e *Exec) onProcessExit(err error, nextAttempt int) {
	e.mu.Lock()
	for id, ch := range e.pending {
		delete(e.pending, id)
		ch <- message{ID: id, Error: "adapter host exited"}
	}
	stillStarted := e.started
	e.mu.Unlock()

	if stillStarted && err != nil {
		e.cb.ReachabilityChanged(e.id, false)
		e.cb.Log(e.id, adapter.LogEntry{
			Time:    time.Now(),
			Level:   "error",
			Message: fmt.Sprintf("adapter host exited: %v (restart attempt %d)", err, nextAttempt),
		})
	}
}
