// Package app wires the distribution console together and runs it.
//
// # Initialization Flow
//
//	1. Load configuration from the environment and an optional YAML file
//	2. Initialize logging and OpenTelemetry
//	3. Create the upstream client and the stores built on it:
//	   configuration builder, dataset source, history store,
//	   distribution machine and its poller
//	4. Forward every store's snapshots to the websocket hub
//	5. Mount the REST handlers behind the middleware chain
//
// # Running
//
// Run serves until its context is cancelled. The websocket hub, the
// optional auto-poller and the HTTP server share one errgroup; the first
// failure stops all of them and the server is shut down gracefully.
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
