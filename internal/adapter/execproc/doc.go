// Package execproc hosts an adapter implemented as an external binary.
//
// The child process speaks a JSON-lines protocol over stdio: each request
// written to stdin carries a sequence id the child echoes back in its
// response line, and the child may interleave unsolicited event lines
// (state changes, reachability, entity registration, logs) at any time.
// Process lifecycle, crash restarts and graceful shutdown are delegated
// to the process manager; the child's OS pid is surfaced through the
// ProcessInfo interface.
package execproc
