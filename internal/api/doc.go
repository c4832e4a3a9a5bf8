// Package api hosts the HTTP server, middleware, and JSON handlers for the
// operator dashboard. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /data for the schedule, history and runtime status.
//   - POST /action for operator commands (publish-now, reschedule, pause-worker,
//     resume-worker, switch-db, clear-cache).
package api
