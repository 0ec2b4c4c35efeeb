// Package api implements the admin HTTP API and WebSocket stream of the Gray
// Logic rules service.
//
// This package provides:
//   - REST endpoints to browse module types, add, inspect, run and remove
//     rules, and read execution history
//   - WebSocket hub relaying "rule.executed" events
//   - JWT bearer authentication with role permissions and ticket-based
//     WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition on /metrics
//
// # Security
//
// Every /api/v1 route except /health requires a bearer token minted with
// the shared secret in security.jwt. WebSocket clients first obtain a
// single-use ticket from POST /api/v1/auth/ws-ticket so the token never
// appears in a URL.
//
// # Graceful Degradation
//
// Execution history endpoints answer 503 when no repository is wired, and
// /health reports the MQTT link without failing when it is down.
package api
