// Package supervisor owns the lifecycle of every configured adapter
// instance: start, stop, restart, health and crash tracking, bounded log
// buffering, and the callback fan-in adapters push state changes,
// reachability and discovered entities through.
//
// The supervisor is the sole owner of the running set. At most one
// instance runs per adapter id; starting an id that is already running
// stops the old instance first. Crashed instances are restarted on a
// bounded exponential backoff so a broken integration can never spin in
// a tight loop.
package supervisor
