// Package api provides the HTTP REST API and WebSocket server for
// Shopfloor Core.
//
// It exposes machine registration CRUD, reconciled status reads, job
// commands, and a real-time status stream to dashboards and shop
// tooling.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
