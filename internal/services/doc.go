// Package services holds cross-store services of the console that do not
// belong to a single store.
//
// HealthService aggregates the upstream API, the websocket hub and the
// history and distribution stores into health, readiness and liveness
// reports:
//
//	svc := services.NewHealthService(build, client, hub, historyStore, machine, logger)
//	status := svc.ReadinessCheck(ctx)
//
// Readiness fails only when the upstream API is unreachable or the hub has
// stopped. A store holding an error is reported as degraded.
package services
