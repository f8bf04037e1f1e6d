package execproc

import (
	"encoding/json"
	"time"

	"github.com/habitat-home/habitat-core/internal/adapter"
	"github.com/habitat-home/habitat-core/internal/property"
)

// Operations the host sends to the child.
const (
	opInit    = "init"
	opObserve = "observe"
	opQuery   = "query"
	opExecute = "execute"
	opStop    = "stop"
)

// Event kinds the child may push unsolicited.
const (
	eventStateChanged = "state_changed"
	eventReachability = "reachability"
	eventEntities     = "entities"
	eventLog          = "log"
)

// request is one host→child line.
type request struct {
	ID       int64          `json:"id"`
	Op       string         `json:"op"`
	EntityID string         `json:"entity_id,omitempty"`
	Property property.Name  `json:"property,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// message is one child→host line, either a response (ID set) or an
// event (Event set).
type message struct {
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Event    string           `json:"event,omitempty"`
	EntityID string           `json:"entity_id,omitempty"`
	Property property.Name    `json:"property,omitempty"`
	State    map[string]any   `json:"state,omitempty"`
	Previous map[string]any   `json:"previous,omitempty"`

	Reachable bool             `json:"reachable,omitempty"`
	Entities  []adapter.Entity `json:"entities,omitempty"`

	Level   string    `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time,omitempty"`
}
