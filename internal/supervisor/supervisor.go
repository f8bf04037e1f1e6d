package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/property"
	"github.com/habitat-home/habitat-core/internal/secrets"
	"github.com/habitat-home/habitat-core/internal/space"
)

// Logger defines the logging interface for the supervisor.
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

// StateHandler receives state changes forwarded from adapter push
// callbacks; the Property Engine implements it.
type StateHandler interface {
	HandleStateChange(adapterID, entityID string, prop property.Name, state, previous map[string]any)
}

// LogPublisher fans adapter log entries out to an external event bus.
type LogPublisher interface {
	PublishAdapterLog(adapterID string, entry adapter.LogEntry)
}

// Options tune supervisor behavior. Zero values pick defaults.
type Options struct {
	// CallTimeout bounds each Observe/Query/Execute adapter call.
	CallTimeout time.Duration

	// LogCapacity is the per-adapter log ring size.
	LogCapacity int

	// RestartInitialDelay / RestartMaxDelay bound the crash-restart
	// backoff: initial delay doubled per consecutive crash, capped,
	// with ±20% jitter.
	RestartInitialDelay time.Duration
	RestartMaxDelay     time.Duration
}

func (o *Options) applyDefaults() {
	if o.CallTimeout == 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.LogCapacity == 0 {
		o.LogCapacity = defaultLogCapacity
	}
	if o.RestartInitialDelay == 0 {
		o.RestartInitialDelay = 2 * time.Second
	}
	if o.RestartMaxDelay == 0 {
		o.RestartMaxDelay = 60 * time.Second
	}
}

// instance is one adapter instance owned by the supervisor.
type instance struct {
	cfg  AdapterConfig
	impl adapter.Adapter
	logs *logBuffer

	// cancel tears down the instance's lifetime context, stopping any
	// pending restart loop and out-of-process hosts.
	cancel context.CancelFunc

	mu            sync.Mutex
	status        Status
	lastPing      time.Time
	restartCount  int
	stopRequested bool
}

func (i *instance) setStatus(s Status) {
	i.mu.Lock()
	i.status = s
	i.mu.Unlock()
}

func (i *instance) ping() {
	i.mu.Lock()
	i.lastPing = time.Now()
	i.mu.Unlock()
}

// Supervisor owns the running set of adapters.
type Supervisor struct {
	adapters *adapter.Registry
	spaces   *space.Registry
	secrets  secrets.Store
	logger   Logger
	opts     Options

	mu        sync.RWMutex
	instances map[string]*instance

	handlerMu    sync.RWMutex
	stateHandler StateHandler
	logPublisher LogPublisher
}

// New creates a supervisor over the given adapter registry, space
// registry and secret store.
func New(adapters *adapter.Registry, spaces *space.Registry, secretStore secrets.Store, opts Options) *Supervisor {
	opts.applyDefaults()
	return &Supervisor{
		adapters:  adapters,
		spaces:    spaces,
		secrets:   secretStore,
		logger:    noopLogger{},
		opts:      opts,
		instances: make(map[string]*instance),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetStateHandler wires the downstream consumer of state-change pushes.
// Set once during wiring, before any adapter starts.
func (s *Supervisor) SetStateHandler(h StateHandler) {
	s.handlerMu.Lock()
	s.stateHandler = h
	s.handlerMu.Unlock()
}

// SetLogPublisher wires the external sink for adapter log entries.
func (s *Supervisor) SetLogPublisher(p LogPublisher) {
	s.handlerMu.Lock()
	s.logPublisher = p
	s.handlerMu.Unlock()
}

// StartAdapter instantiates and starts one configured adapter. If an
// instance with the same id is already running it is stopped first, so
// two instances never run concurrently for one id.
func (s *Supervisor) StartAdapter(ctx context.Context, cfg AdapterConfig) error {
	s.mu.Lock()
	if old, ok := s.instances[cfg.ID]; ok {
		s.mu.Unlock()
		old.mu.Lock()
		oldStatus := old.status
		old.mu.Unlock()
		if oldStatus != StatusStopped {
			s.logger.Info("stopping previous adapter instance before start", "adapter_id", cfg.ID)
			if err := s.StopAdapter(ctx, cfg.ID); err != nil {
				s.logger.Warn("stopping previous instance failed", "adapter_id", cfg.ID, "error", err)
			}
		}
		s.mu.Lock()
	}

	impl, err := s.instantiate(cfg)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	lifetime, cancel := context.WithCancel(context.Background())
	inst := &instance{
		cfg:      *cfg.DeepCopy(),
		impl:     impl,
		logs:     newLogBuffer(s.opts.LogCapacity),
		cancel:   cancel,
		status:   StatusRunning,
		lastPing: time.Now(),
	}
	s.instances[cfg.ID] = inst
	s.mu.Unlock()

	if err := s.safeStart(lifetime, inst); err != nil {
		inst.setStatus(StatusCrashed)
		cancel()
		return fmt.Errorf("starting adapter %s: %w", cfg.ID, err)
	}

	s.logger.Info("adapter started", "adapter_id", cfg.ID, "type", cfg.Type)
	return nil
}

// instantiate resolves the factory and constructs the adapter with its
// secret references resolved.
func (s *Supervisor) instantiate(cfg AdapterConfig) (adapter.Adapter, error) {
	reg, err := s.adapters.Resolve(cfg.Type)
	if err != nil {
		return nil, err
	}

	resolved := cfg.Config
	if s.secrets != nil {
		resolved, err = secrets.Resolve(cfg.Config, s.secrets)
		if err != nil {
			return nil, fmt.Errorf("resolving secrets for adapter %s: %w", cfg.ID, err)
		}
	}

	impl, err := reg.Factory(cfg.ID, resolved, s)
	if err != nil {
		return nil, fmt.Errorf("constructing adapter %s: %w", cfg.ID, err)
	}
	return impl, nil
}

// StopAdapter stops a running adapter instance. The instance stays in
// the health table as stopped.
func (s *Supervisor) StopAdapter(ctx context.Context, id string) error {
	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAdapterNotRunning, id)
	}

	inst.mu.Lock()
	inst.stopRequested = true
	inst.mu.Unlock()
	inst.cancel()

	if err := s.safeStop(ctx, inst); err != nil {
		s.logger.Warn("adapter stop reported error", "adapter_id", id, "error", err)
	}
	inst.setStatus(StatusStopped)
	s.spaces.SetAdapterReachability(id, false)
	s.logger.Info("adapter stopped", "adapter_id", id)
	return nil
}

// RestartAdapter stops and restarts an adapter with its current config.
func (s *Supervisor) RestartAdapter(ctx context.Context, id string) error {
	s.mu.RLock()
	inst, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAdapterNotRunning, id)
	}

	cfg := *inst.cfg.DeepCopy()
	if err := s.StopAdapter(ctx, id); err != nil {
		return err
	}
	return s.StartAdapter(ctx, cfg)
}

// StopAll stops every non-stopped instance, including crashed ones so
// their restart loops are cancelled.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.RLock()
	var ids []string
	for id, inst := range s.instances {
		inst.mu.Lock()
		status := inst.status
		inst.mu.Unlock()
		if status != StatusStopped {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := s.StopAdapter(ctx, id); err != nil {
			s.logger.Warn("stopping adapter failed", "adapter_id", id, "error", err)
		}
	}
}

// Observe performs a live state read through the adapter. Errors mean
// the adapter or its downstream is unreachable; cache fallback is the
// caller's responsibility.
func (s *Supervisor) Observe(ctx context.Context, adapterID, entityID string, prop property.Name) (map[string]any, error) {
	inst, err := s.runningInstance(adapterID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var state map[string]any
	err = s.safeCall(adapterID, func() error {
		var callErr error
		state, callErr = inst.impl.Observe(callCtx, entityID, prop)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	inst.ping()
	return state, nil
}

// Query fetches collection items through the adapter.
func (s *Supervisor) Query(ctx context.Context, adapterID, entityID string, prop property.Name, params map[string]any) (adapter.QueryResult, error) {
	inst, err := s.runningInstance(adapterID)
	if err != nil {
		return adapter.QueryResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var result adapter.QueryResult
	err = s.safeCall(adapterID, func() error {
		var callErr error
		result, callErr = inst.impl.Query(callCtx, entityID, prop, params)
		return callErr
	})
	if err != nil {
		return adapter.QueryResult{}, err
	}
	inst.ping()
	return result, nil
}

// Execute dispatches a command through the adapter. Failures of any
// kind come back in the result, never as a raised error.
func (s *Supervisor) Execute(ctx context.Context, adapterID, entityID string, prop property.Name, params map[string]any) adapter.ExecuteResult {
	inst, err := s.runningInstance(adapterID)
	if err != nil {
		return adapter.ExecuteResult{Success: false, Error: err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var result adapter.ExecuteResult
	err = s.safeCall(adapterID, func() error {
		var callErr error
		result, callErr = inst.impl.Execute(callCtx, entityID, prop, params)
		return callErr
	})
	if err != nil {
		return adapter.ExecuteResult{Success: false, Error: err.Error()}
	}
	inst.ping()
	return result
}

// Health returns the health of every known adapter instance, sorted by id.
func (s *Supervisor) Health() []AdapterHealth {
	s.mu.RLock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]AdapterHealth, 0, len(ids))
	for _, id := range ids {
		if h, err := s.AdapterHealth(id); err == nil {
			out = append(out, *h)
		}
	}
	return out
}

// AdapterHealth returns the health of one adapter instance.
func (s *Supervisor) AdapterHealth(id string) (*AdapterHealth, error) {
	s.mu.RLock()
	inst, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, id)
	}

	inst.mu.Lock()
	h := AdapterHealth{
		ID:           inst.cfg.ID,
		Type:         inst.cfg.Type,
		Status:       inst.status,
		LastPing:     inst.lastPing,
		RestartCount: inst.restartCount,
	}
	impl := inst.impl
	inst.mu.Unlock()

	h.EntityCount = s.spaces.SourceCountForAdapter(id) + len(s.spaces.PendingEntities(id))
	if pi, ok := impl.(adapter.ProcessInfo); ok {
		h.PID = pi.PID()
		// A crash-looping child process never panics in-process; fold
		// its restarts into the count so it stays visible in health.
		h.RestartCount += pi.Restarts()
	}
	return &h, nil
}

// AdapterLogs returns the buffered log entries for one adapter.
func (s *Supervisor) AdapterLogs(id string) ([]adapter.LogEntry, error) {
	s.mu.RLock()
	inst, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, id)
	}
	return inst.logs.Entries(), nil
}

// RunningAdapterIDs returns the ids of all instances currently serving
// calls, sorted. Crashed and restarting instances are excluded: their
// sources must stay unreachable until a restart succeeds and the
// adapter re-pushes reachability.
func (s *Supervisor) RunningAdapterIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, inst := range s.instances {
		inst.mu.Lock()
		status := inst.status
		inst.mu.Unlock()
		if status == StatusRunning {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// runningInstance returns the instance for id if it is serving calls.
func (s *Supervisor) runningInstance(id string) (*instance, error) {
	s.mu.RLock()
	inst, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotRunning, id)
	}

	inst.mu.Lock()
	status := inst.status
	inst.mu.Unlock()
	if status != StatusRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrAdapterNotRunning, id, status)
	}
	return inst, nil
}

// safeStart runs the adapter's Start, converting a panic into an error.
func (s *Supervisor) safeStart(ctx context.Context, inst *instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked during start: %v", r)
		}
	}()
	return inst.impl.Start(ctx)
}

// safeStop runs the adapter's Stop, converting a panic into an error.
func (s *Supervisor) safeStop(ctx context.Context, inst *instance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked during stop: %v", r)
		}
	}()
	return inst.impl.Stop(ctx)
}

// safeCall runs one adapter call. A panic marks the instance crashed
// and schedules a restart; the caller gets an error either way.
func (s *Supervisor) safeCall(adapterID string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter %s panicked: %v", adapterID, r)
			s.handleCrash(adapterID, err)
		}
	}()
	return fn()
}

// handleCrash transitions the instance to crashed and schedules a
// restart on the backoff schedule.
func (s *Supervisor) handleCrash(id string, cause error) {
	s.mu.RLock()
	inst, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	inst.mu.Lock()
	if inst.stopRequested || inst.status == StatusCrashed || inst.status == StatusRestarting {
		inst.mu.Unlock()
		return
	}
	inst.status = StatusCrashed
	inst.restartCount++
	attempt := inst.restartCount
	inst.mu.Unlock()

	s.logger.Error("adapter crashed",
		"adapter_id", id,
		"restart_count", attempt,
		"error", cause,
	)
	s.spaces.SetAdapterReachability(id, false)

	go s.restartLoop(id, inst, attempt)
}

// restartLoop retries a crashed instance until it starts or is stopped.
func (s *Supervisor) restartLoop(id string, inst *instance, attempt int) {
	for {
		delay := s.backoff(attempt)
		s.logger.Info("scheduling adapter restart",
			"adapter_id", id,
			"attempt", attempt,
			"delay", delay,
		)
		time.Sleep(delay)

		inst.mu.Lock()
		if inst.stopRequested {
			inst.mu.Unlock()
			return
		}
		inst.status = StatusRestarting
		cfg := *inst.cfg.DeepCopy()
		inst.mu.Unlock()

		if err := s.restartOnce(inst, cfg); err != nil {
			s.logger.Error("adapter restart failed", "adapter_id", id, "error", err)
			inst.mu.Lock()
			if inst.stopRequested {
				inst.mu.Unlock()
				return
			}
			inst.status = StatusCrashed
			inst.restartCount++
			attempt = inst.restartCount
			inst.mu.Unlock()
			continue
		}

		s.logger.Info("adapter restarted", "adapter_id", id, "attempt", attempt)
		return
	}
}

// restartOnce tears down the crashed instance and brings up a fresh one
// in place.
func (s *Supervisor) restartOnce(inst *instance, cfg AdapterConfig) error {
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	if err := s.safeStop(stopCtx, inst); err != nil {
		s.logger.Debug("stopping crashed instance", "adapter_id", cfg.ID, "error", err)
	}
	cancelStop()
	inst.cancel()

	impl, err := s.instantiate(cfg)
	if err != nil {
		return err
	}

	lifetime, cancel := context.WithCancel(context.Background())
	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("adapter panicked during start: %v", r)
			}
		}()
		return impl.Start(lifetime)
	}(); err != nil {
		cancel()
		return err
	}

	inst.mu.Lock()
	inst.impl = impl
	inst.cancel = cancel
	inst.status = StatusRunning
	inst.lastPing = time.Now()
	inst.mu.Unlock()
	return nil
}

// backoff computes the restart delay for a crash attempt.
func (s *Supervisor) backoff(attempt int) time.Duration {
	delay := s.opts.RestartInitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.opts.RestartMaxDelay {
			delay = s.opts.RestartMaxDelay
			break
		}
	}
	jitter := 0.8 + 0.4*rand.Float64() //nolint:gosec // Non-cryptographic jitter
	return time.Duration(float64(delay) * jitter)
}

// Callback fan-in. The supervisor is the adapter.Callbacks surface
// handed to every instance; pushes are forwarded in arrival order.

// StateChanged forwards a state push to the Property Engine.
func (s *Supervisor) StateChanged(adapterID, entityID string, prop property.Name, state, previous map[string]any) {
	if inst := s.lookup(adapterID); inst != nil {
		inst.ping()
	}

	s.handlerMu.RLock()
	handler := s.stateHandler
	s.handlerMu.RUnlock()
	if handler != nil {
		handler.HandleStateChange(adapterID, entityID, prop, state, previous)
	}
}

// ReachabilityChanged forwards a reachability push to the space registry.
func (s *Supervisor) ReachabilityChanged(adapterID string, reachable bool) {
	if inst := s.lookup(adapterID); inst != nil {
		inst.ping()
	}
	s.logger.Debug("adapter reachability changed", "adapter_id", adapterID, "reachable", reachable)
	s.spaces.SetAdapterReachability(adapterID, reachable)
}

// EntitiesRegistered forwards discovered entities to the space registry.
func (s *Supervisor) EntitiesRegistered(adapterID string, entities []adapter.Entity) {
	if inst := s.lookup(adapterID); inst != nil {
		inst.ping()
	}
	s.logger.Info("adapter registered entities", "adapter_id", adapterID, "count", len(entities))
	s.spaces.ApplyEntityRegistrations(adapterID, entities)
}

// Log appends an entry to the adapter's log buffer and forwards it to
// the external publisher when one is wired.
func (s *Supervisor) Log(adapterID string, entry adapter.LogEntry) {
	if inst := s.lookup(adapterID); inst != nil {
		inst.logs.Append(entry)
	}

	s.handlerMu.RLock()
	publisher := s.logPublisher
	s.handlerMu.RUnlock()
	if publisher != nil {
		publisher.PublishAdapterLog(adapterID, entry)
	}
}

func (s *Supervisor) lookup(id string) *instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances[id]
}
