package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"distconsole/internal/config"
	"distconsole/internal/constructor"
	"distconsole/internal/dataset"
	"distconsole/internal/distribution"
	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
	"distconsole/internal/history"
	"distconsole/internal/infrastructure"
	customMiddleware "distconsole/internal/middleware"
	"distconsole/internal/services"
	handlers "distconsole/internal/transport/http"
	"distconsole/internal/upstream"
	ws "distconsole/internal/websocket"
	"distconsole/pkg/contracts"
)

const AppName = "distconsole"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics

	Upstream      *upstream.Client
	WebSocketHub  *ws.Hub
	Builder       *constructor.Builder
	Dataset       *dataset.Source
	History       *history.Store
	Distribution  *distribution.Machine
	Poller        *distribution.Poller
	HealthService *services.HealthService
	Exporter      *exporter.Exporter

	unsubscribe []func()
}

// NewApplication loads configuration from the environment, initializes the
// global logger and builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds the application from an explicit configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("upstream", cfg.Upstream.BaseURL))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the stores around one upstream client and
// forwards every store's snapshots to the websocket hub
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	client, err := upstream.New(a.Config.Upstream, a.Logger)
	if err != nil {
		return err
	}
	a.Upstream = client

	hub := ws.NewHub(metrics, a.Logger)
	a.WebSocketHub = hub

	a.History = history.NewStore(client, metrics, a.Logger)
	a.Distribution = distribution.NewMachine(client, a.History, hub, metrics, a.Logger)
	a.Poller = distribution.NewPoller(a.Distribution, a.Config.Distribution.PollInterval, a.Logger)
	a.Builder = constructor.NewBuilder(client, a.Logger,
		constructor.WithNotifier(hub),
		constructor.WithMetrics(metrics))
	a.Dataset = dataset.NewSource(client, a.Logger)
	a.Exporter = exporter.New(a.Logger)

	a.HealthService = services.NewHealthService(
		services.BuildInfo{Version: contracts.Version, Commit: contracts.GitCommit, BuildTime: contracts.BuildTime},
		client, hub, a.History, a.Distribution, a.Logger)

	a.unsubscribe = append(a.unsubscribe,
		ws.Forward(hub, ws.TypeSnapshotConfigurations, a.Builder.Subscribe),
		ws.Forward(hub, ws.TypeSnapshotDistribution, a.Distribution.Subscribe),
		ws.Forward(hub, ws.TypeSnapshotHistory, a.History.Subscribe),
		ws.Forward(hub, ws.TypeSnapshotDataset, a.Dataset.Subscribe),
	)
	return nil
}

// setupRouter configures the chi router. /ws and /metrics sit outside the
// group so the upgrade and scrape responses are not wrapped.
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apperrors.NewErrorHandler(a.Logger, a.Config.Server.IncludeStack)

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	r.With(customMiddleware.WebSocketTrace(a.Logger)).
		Handle("/ws", ws.NewHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger))

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer → Timeout
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r, errorHandler)
	})

	a.Router = r
}

func (a *Application) setupAPIRoutes(r chi.Router, errorHandler *apperrors.ErrorHandler) {
	dataframe := a.Config.Upstream.DefaultDataframe

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		r.Mount("/operations", handlers.NewOperationsHandler(errorHandler).Routes())

		configurationHandler := handlers.NewConfigurationHandler(a.Builder, errorHandler, dataframe, a.Logger)
		configurationHandler.SetTracker(a.Distribution)
		configurationHandler.SetExporter(a.Exporter)
		r.Mount("/configurations", configurationHandler.Routes())

		r.Mount("/dataset", handlers.NewDatasetHandler(a.Dataset, a.Exporter, errorHandler, dataframe, a.Logger).Routes())
		r.Mount("/distributions", handlers.NewDistributionHandler(a.Distribution, errorHandler, a.Logger).Routes())
		r.Mount("/history", handlers.NewHistoryHandler(a.History, a.Exporter, errorHandler, a.Logger).Routes())
	})
}

func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Address(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run serves until ctx is cancelled or a component fails, then shuts the
// server down gracefully and releases telemetry
func (a *Application) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (a *Application) Serve(ctx context.Context, listener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.WebSocketHub.Run(gctx) })
	g.Go(func() error { return a.Poller.Run(gctx) })

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "Application started",
			slog.String("address", "http://"+listener.Addr().String()),
			slog.Bool("auto_poll", a.Poller.Enabled()))
		if err := a.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutting down application")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if a.Config.Distribution.LoadOnStart {
		g.Go(func() error {
			a.loadInitialState(gctx)
			return nil
		})
	}

	err := g.Wait()
	a.stop(context.WithoutCancel(ctx))
	return err
}

// loadInitialState fills the stores the UI shows first. Failures are already
// reflected in the store snapshots and only logged here.
func (a *Application) loadInitialState(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		return a.Distribution.Fetch(ctx, "")
	})
	if df := a.Config.Upstream.DefaultDataframe; df != "" {
		g.Go(func() error {
			return a.Dataset.Load(ctx, df, 1)
		})
	}
	if err := g.Wait(); err != nil {
		a.Logger.WarnContext(ctx, "Initial load incomplete", slog.String("error", err.Error()))
	}
}

func (a *Application) stop(ctx context.Context) {
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.unsubscribe = nil

	if a.OTelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
	a.Logger.InfoContext(ctx, "Application shutdown complete")
}
