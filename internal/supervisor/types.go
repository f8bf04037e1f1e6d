package supervisor

import (
	"time"
)

// Status is the lifecycle state of one adapter instance.
type Status string

const (
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
	StatusRestarting Status = "restarting"
	StatusCrashed    Status = "crashed"
)

// AdapterConfig is the persisted configuration of one adapter instance.
type AdapterConfig struct {
	// ID uniquely identifies this instance (e.g. "hue-1").
	ID string `json:"id"`

	// Type selects the implementation via the adapter registry.
	Type string `json:"type"`

	// DisplayName is a human-readable label.
	DisplayName string `json:"display_name"`

	// Config is the opaque per-instance configuration blob. Secret
	// references inside it are resolved just before instantiation.
	Config map[string]any `json:"config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the config.
func (c *AdapterConfig) DeepCopy() *AdapterConfig {
	out := *c
	out.Config = deepCopyMap(c.Config)
	return &out
}

// AdapterHealth is the supervisor's view of one adapter instance.
// Mutated only by supervisor-internal transitions.
type AdapterHealth struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status Status `json:"status"`

	// EntityCount is the number of entities the adapter has registered
	// at runtime plus those provisioned in configuration.
	EntityCount int `json:"entity_count"`

	// LastPing is the time of the last successful interaction with the
	// adapter, pull or push.
	LastPing time.Time `json:"last_ping"`

	// RestartCount is the number of crash restarts since StartAdapter.
	RestartCount int `json:"restart_count"`

	// PID is the OS process id for adapters hosted out of process,
	// 0 otherwise.
	PID int `json:"pid,omitempty"`
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
