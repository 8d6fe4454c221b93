// Package services holds the serve-mode business logic that sits between the
// HTTP handlers and the download pipeline.
//
// BatchService accepts BatchRequests, queues them, and runs them one at a
// time on a single dedicated worker goroutine. Every Outcome a batch reports
// is appended to its record in the BatchStore and pushed to websocket clients
// as a "batch:outcome" event; lifecycle changes are pushed as "batch:status".
//
//	store := services.NewBatchStore()
//	svc := services.NewBatchService(downloader, store, hub, cfg.Server.QueueSize, logger)
//	svc.Start(ctx)
//	defer svc.Shutdown(shutdownCtx)
//
//	batch, err := svc.Submit(ctx, domain.BatchRequest{StartDate: "2024-01-01", EndDate: "2024-01-31"})
//
// HealthService reports liveness and readiness for the /healthz endpoint.
package services
