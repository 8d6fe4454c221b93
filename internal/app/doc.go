// Package app assembles the serve-mode container: configuration, telemetry,
// the download pipeline, the batch service, the websocket hub and the chi
// router that exposes them.
//
// Shutdown order is HTTP server, batch worker, hub, telemetry. A batch that
// is running when the process stops finishes its current date and reports
// itself cancelled.
package app
