// Package process manages the lifecycle of adapter host subprocesses.
//
// Some integrations run outside the Habitat process (separate binary,
// separate runtime); this package owns starting them, streaming their
// stdio line by line, and restarting them after a crash with bounded
// exponential backoff and jitter so a broken binary can never restart-loop
// at full speed.
//
// The exec adapter builds its JSON-lines transport on top of the stdio
// callbacks; this package knows nothing about the wire format.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "garage-bridge",
//	    Binary: "/opt/habitat/adapters/garage-bridge",
//	    OnStdoutLine: func(line string) { ... },
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
