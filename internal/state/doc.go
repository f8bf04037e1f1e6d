// Package state persists last-known source state and cached collection
// items for Habitat Core.
//
// Writes are idempotent upserts: exactly one row exists per
// (source_id, property) state key and per (source_id, property, item_id)
// collection key, and the last write wins. Concurrent writers to the same
// key simply race to be last — an accepted property of the design, since
// every write carries a fresh observation of the same external truth.
//
// The Property Engine writes through this package on every accepted state
// change and reads from it on the cached/fallback paths; the Habitat facade
// seeds and prunes it.
package state
