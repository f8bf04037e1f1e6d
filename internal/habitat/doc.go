// Package habitat wires the orchestration core together and drives its
// lifecycle: configuration load, parallel failure-tolerant adapter boot,
// state-cache seeding, periodic collection reseeds, and reload.
//
// The facade is also the event boundary. It implements the engine's event
// sink and the supervisor's log publisher, retaining recent events in a
// bounded ring for polling consumers and fanning them out to the MQTT bus,
// the optional time-series recorder, and in-process subscribers (the
// websocket hub).
//
// One adapter's failure never aborts the rest of the system: startup uses
// settle-all semantics and seeding is best-effort by design.
package habitat
