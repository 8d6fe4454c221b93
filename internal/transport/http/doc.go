// Package http implements the REST surface of serve mode. Handlers parse and
// validate requests, delegate to the services package, and translate service
// errors into APIError responses rendered with go-chi/render.
//
// Routes mounted by the app package:
//
//	POST /api/v1/batches              submit a BatchRequest, 202 + batch
//	GET  /api/v1/batches              list batches (?status=, ?limit=)
//	GET  /api/v1/batches/{id}         one batch with its outcomes so far
//	POST /api/v1/batches/{id}/cancel  cooperative cancellation
//	GET  /healthz, /healthz/ready     liveness and readiness
//	GET  /version
//	GET  /metrics                     Prometheus exposition
//	GET  /api/v1/stats                websocket hub counters
package http
