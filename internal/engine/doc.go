// Package engine is the orchestration brain of the hub.
//
// It resolves observe, query and influence requests against the space
// registry and the adapter supervisor, merges live adapter results with
// the persisted state cache, writes accepted state changes through to
// the store, and emits one normalized event per accepted change.
//
// Two read paths exist on purpose. ObserveCached never touches an
// adapter and is safe to poll; Observe is the live path and degrades to
// cache when an integration is flaky, so a broken adapter costs
// freshness, never the read itself.
package engine
