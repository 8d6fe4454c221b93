package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"mktsummary/internal/config"
	handlers "mktsummary/internal/transport/http"
	"mktsummary/internal/infrastructure"
	customMiddleware "mktsummary/internal/middleware"
	"mktsummary/internal/operations"
	"mktsummary/internal/services"
	"mktsummary/internal/storage"
	ws "mktsummary/internal/websocket"
	"mktsummary/pkg/contracts"
)

const (
	// batchRetention bounds how long finished batches stay queryable.
	batchRetention  = 24 * time.Hour
	cleanupInterval = time.Hour
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	WebSocketHub  *ws.Hub
	Downloader    *operations.Downloader
	BatchStore    *services.BatchStore
	BatchService  *services.BatchService
	HealthService *services.HealthService

	stopCleanup context.CancelFunc
}

// NewApplication wires the serve-mode container from a loaded configuration.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.InfoContext(ctx, "Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFromTelemetry(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := app.setupRouter(); err != nil {
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}
	app.createServer()

	return app, nil
}

// initializeServices builds the pipeline and the services around it
func (a *Application) initializeServices(ctx context.Context) error {
	tracer, err := operations.NewBatchTracer(a.OTelProviders)
	if err != nil {
		return err
	}

	sink, err := storage.New(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage mirror: %w", err)
	}

	downloader, err := operations.NewDownloaderFromConfig(a.Config.Download, operations.Deps{
		Sink:   sink,
		Tracer: tracer,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize downloader: %w", err)
	}
	a.Downloader = downloader

	a.WebSocketHub = ws.NewHub(a.Logger)
	a.BatchStore = services.NewBatchStore()
	a.BatchService = services.NewBatchService(downloader, a.BatchStore, a.WebSocketHub, a.Config.Server.QueueSize, a.Logger)
	a.BatchService.SetLimits(services.BatchLimits{
		MaxDays:    a.Config.Server.MaxBatchDays,
		OutputRoot: a.Config.BatchOutputRoot(),
	})
	a.HealthService = services.NewHealthService(
		contracts.Version,
		a.Config.Download.OutputDir,
		a.BatchService,
		a.WebSocketHub,
		a.Logger,
	)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.Recoverer(a.Logger))

	// The websocket endpoint sits outside the logging, timeout and rate
	// limiting stack; those wrap the ResponseWriter and break Hijack.
	r.Get("/ws", ws.Handler(a.WebSocketHub, a.Config.Server.AllowedOrigins, a.Logger))

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return err
	}

	health := handlers.NewHealthHandler(a.HealthService, a.Logger)
	metrics := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.WebSocketHub)
	batches := handlers.NewBatchesHandler(a.BatchService, customMiddleware.NewValidator(), a.Logger)

	r.Group(func(r chi.Router) {
		r.Use(otelMiddleware.Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Server.AllowedOrigins,
		}))
		if rl := a.Config.Server.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		r.Get("/healthz", health.LivenessCheck)
		r.Get("/healthz/ready", health.ReadinessCheck)
		r.Get("/version", health.Version)
		r.Get("/metrics", metrics.Metrics)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Mount("/batches", batches.Routes())
			r.Get("/stats", metrics.Stats)
		})
	})

	a.Router = r
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the background services and begins serving on ln. A nil
// listener binds the configured port.
func (a *Application) Start(ctx context.Context, ln net.Listener, cancel context.CancelFunc) error {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.Server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
		}
	}

	if err := config.EnsureDir(a.Config.Download.OutputDir); err != nil {
		a.Logger.WarnContext(ctx, "Output directory not available yet",
			slog.String("output_dir", a.Config.Download.OutputDir),
			slog.String("error", err.Error()))
	}

	a.WebSocketHub.Start()
	a.BatchService.Start(ctx)
	a.startCleanup(ctx)

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			if cancel != nil {
				cancel()
			}
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", ln.Addr().String()),
		slog.String("output_dir", a.Config.Download.OutputDir),
		slog.Int("workers", a.Config.Download.Workers))
	return nil
}

func (a *Application) startCleanup(ctx context.Context) {
	ctx, a.stopCleanup = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := a.BatchStore.CleanupOld(batchRetention); n > 0 {
					a.Logger.InfoContext(ctx, "Removed finished batches", slog.Int("count", n))
				}
			}
		}
	}()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.stopCleanup != nil {
		a.stopCleanup()
	}

	// The running batch stops at its next date boundary; queued batches stay queued.
	if err := a.BatchService.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("batch service shutdown error: %w", err))
	}
	a.WebSocketHub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("log file close error: %w", err))
	}
	return errors.Join(errs...)
}

// Run serves until SIGINT or SIGTERM, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, nil, stop); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "Received interrupt signal")

	return a.Stop(context.WithoutCancel(ctx))
}
