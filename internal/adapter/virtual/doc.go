// Package virtual provides a simulated in-process adapter.
//
// It serves observe, query and execute from in-memory state seeded by its
// config blob, registers its entities dynamically on start, and pushes
// state changes through the callback surface like a real integration
// would. It exists for development setups and end-to-end tests that need
// a working adapter without any hardware behind it.
package virtual
