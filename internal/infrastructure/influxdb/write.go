package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStateChange records a property state-change event. The write is
// batched and sent asynchronously. Only numeric and boolean state
// values become fields; strings are skipped since they are poorly
// suited to time-series queries.
func (c *Client) WriteStateChange(spaceID, sourceID, property string, state map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any)
	for key, value := range state {
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case int:
			fields[key] = float64(v)
		case bool:
			fields[key] = v
		}
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"state_change",
		map[string]string{
			"space_id":  spaceID,
			"source_id": sourceID,
			"property":  property,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteAdapterHealth records an adapter health snapshot, tracking
// stability over time: restarts and registered entity counts.
func (c *Client) WriteAdapterHealth(adapterID, status string, restartCount, entityCount int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"adapter_health",
		map[string]string{
			"adapter_id": adapterID,
			"status":     status,
		},
		map[string]any{
			"restart_count": restartCount,
			"entity_count":  entityCount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for measurements that don't fit
// the helper methods. Tags should stay low-cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with an explicit timestamp
// for data that arrives late.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
