// Package adapter defines the contract every pluggable integration must
// honor toward Habitat Core, and the registry that maps adapter type names
// to implementations.
//
// An adapter wraps one class of external device or service (a lighting
// bridge, a calendar server, a garage-door controller) behind a uniform
// surface: lifecycle (Start/Stop), pull operations (Observe/Query/Execute)
// and a push callback surface for state changes, reachability and
// dynamically discovered entities. How an adapter talks to its downstream
// protocol is its own business; Habitat only depends on this contract.
//
// # Registry
//
// Implementations register a factory under a type name at startup:
//
//	adapter.DefaultRegistry.Register("virtual", adapter.Registration{
//	    Factory: virtual.New,
//	})
//
// Re-registering a type name overwrites the previous mapping (with a
// warning) so plugin-discovered types can be hot-reloaded without a
// process restart. Resolve is the only place in the orchestration layer
// where an unknown type is a hard error.
package adapter
