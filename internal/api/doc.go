// Package api provides the HTTP REST API and WebSocket server for
// Habitat Core.
//
// It exposes the space graph, observe/influence/query operations,
// adapter health and logs, and a live event stream to dashboards and
// automations on the local network.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Security Considerations: the API binds to a trusted LAN interface and
// carries no authentication, matching the deployment model of the rest
// of the core. Request bodies are capped at 1 MB and CORS origins are
// configurable.
//
// Thread Safety: all methods are safe for concurrent use from multiple
// goroutines.
package api
