// Package server exposes the deployment orchestrator and review gates over HTTP.
//
// Routes:
//   - GET  /health                  liveness and integration status
//   - GET  /metrics                 Prometheus metrics
//   - POST /deployments             start an orchestration (202, runs in the background)
//   - POST /deployments/sync        run an orchestration and return the envelope
//   - GET  /deployments             active deployments and history
//   - GET  /deployments/{id}        one tracked deployment
//   - POST /deployments/cleanup     drop finished deployments from the active table
//   - GET  /history?limit=N         recent history (default 10)
//   - POST /reviews/{gate}          run the design, code or security review
//
// Mutating routes require an X-Launchpad-Signature header (HMAC-SHA256 of the body)
// when an API secret is configured. Requests are rate limited per client IP and
// deployments are serialised per project.
package server
