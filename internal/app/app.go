// Package app wires the application together: configuration, logging,
// metrics, the analysis service, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nikkeicli/internal/config"
	apierrors "nikkeicli/internal/errors"
	"nikkeicli/internal/fetcher"
	"nikkeicli/internal/infrastructure"
	"nikkeicli/internal/services"
	handlers "nikkeicli/internal/transport/http"
)

const (
	Version = "1.0.0"
	AppName = "Nikkei 225 Contribution Analyzer"
)

// Application is the main application container.
type Application struct {
	Config          *config.Config
	Paths           *config.Paths
	Router          *chi.Mux
	Server          *http.Server
	AnalysisService *services.AnalysisService
	Registry        *prometheus.Registry
	Logger          *slog.Logger
}

// NewApplication loads configuration and builds the full dependency graph.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	paths, err := config.GetPaths(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	app := &Application{
		Config:   cfg,
		Paths:    paths,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	app.initializeServices()
	app.setupRouter()
	app.createServer()

	return app, nil
}

func (a *Application) initializeServices() {
	client := &http.Client{Timeout: a.Config.Fetch.RequestTimeout}

	masterSource := fetcher.NewMasterDownloader(client, a.Config.Fetch.MasterURL,
		a.Config.Fetch.UserAgent, a.Paths, a.Logger)
	quoteSource := fetcher.NewQuoteFetcher(client, a.Config.Fetch.QuoteBaseURL,
		a.Config.Fetch.UserAgent, a.Config.Fetch.RequestsPerSecond, a.Logger)
	indexSource := fetcher.NewIndexQuoteFetcher(client, a.Config.Fetch.IndexURL,
		a.Config.Fetch.UserAgent, a.Logger)

	metrics := services.NewMetrics(a.Registry)

	a.AnalysisService = services.NewAnalysisService(a.Paths, masterSource, quoteSource,
		indexSource, fetcher.LoadConstituents, metrics, a.Logger)
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		errorHandler := apierrors.NewErrorHandler(a.Logger)
		analysisHandler := handlers.NewAnalysisHandler(a.AnalysisService, a.Logger, errorHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.ReadTimeout))
			r.Mount("/health", handlers.NewHealthHandler(Version).Routes())
			r.Get("/status", analysisHandler.GetStatus)
			r.Get("/data", analysisHandler.GetData)
			r.Get("/movers", analysisHandler.GetMovers)
		})

		// An analysis run fetches every constituent, so it gets a much
		// longer timeout than the read endpoints.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.AnalysisTimeout))
			r.Post("/analyze", analysisHandler.RunAnalysis)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.AnalysisTimeout + time.Minute,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the HTTP server. Server failures cancel the run context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting HTTP server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("data_dir", a.Paths.DataDir))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	infrastructure.CloseLogFile()
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
