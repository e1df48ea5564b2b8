package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/devpayr/devpayr-go/internal/client"
	"github.com/devpayr/devpayr-go/internal/config"
	apperrors "github.com/devpayr/devpayr-go/internal/errors"
	"github.com/devpayr/devpayr-go/internal/failure"
	"github.com/devpayr/devpayr-go/internal/identity"
	"github.com/devpayr/devpayr-go/internal/infrastructure"
	"github.com/devpayr/devpayr-go/internal/license"
	customMiddleware "github.com/devpayr/devpayr-go/internal/middleware"
	httphandlers "github.com/devpayr/devpayr-go/internal/transport/http"
)

// Application wires the license gate in front of a small demo server.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Services      *client.Services
	Validator     *license.Validator
	Policy        *failure.Policy
	Gate          *customMiddleware.LicenseGate
	ErrorHandler  *apperrors.ErrorHandler
	OTelProviders *infrastructure.OTelProviders
	Logger        *slog.Logger

	otelConfig *infrastructure.OTelConfig
	authority  license.Authority
	content    http.Handler
}

// Option customises an Application.
type Option func(*Application)

// WithOTelConfig overrides the default OpenTelemetry setup.
func WithOTelConfig(cfg *infrastructure.OTelConfig) Option {
	return func(a *Application) { a.otelConfig = cfg }
}

// WithAuthority replaces the remote payment check.
func WithAuthority(auth license.Authority) Option {
	return func(a *Application) { a.authority = auth }
}

// WithContent sets the handler served behind the gate at "/".
func WithContent(h http.Handler) Option {
	return func(a *Application) { a.content = h }
}

// NewApplication builds every component from cfg. The returned application
// has not started listening yet.
func NewApplication(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	a := &Application{
		Config: cfg,
		Logger: infrastructure.WithComponent(logger, "app"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.content == nil {
		a.content = http.HandlerFunc(a.handleHome)
	}

	if a.otelConfig == nil {
		a.otelConfig = infrastructure.NewOTelConfig(cfg.Telemetry)
	}
	providers, err := infrastructure.InitializeOTel(a.otelConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers

	if err := a.initializeServices(logger); err != nil {
		return nil, err
	}

	a.setupRouter()
	a.createServer()

	return a, nil
}

func (a *Application) initializeServices(logger *slog.Logger) error {
	httpClient, err := client.New(a.Config, client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	a.Services = client.NewServices(httpClient)
	if a.authority == nil {
		a.authority = a.Services.Payments
	}

	metrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}
	a.Validator, err = license.NewValidator(a.Config, a.authority,
		license.WithMetrics(metrics),
		license.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	a.Policy = failure.New(a.Config, failure.WithLogger(logger))
	a.ErrorHandler = apperrors.NewErrorHandler(logger, false)

	gateMetrics, err := customMiddleware.NewGateMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create gate metrics: %w", err)
	}
	a.Gate = customMiddleware.NewLicenseGate(a.Validator, a.Policy, logger,
		customMiddleware.WithGateMetrics(gateMetrics),
		customMiddleware.WithErrorHandler(a.ErrorHandler),
		customMiddleware.WithExcludePaths("/api/version"))

	return nil
}

// setupRouter follows RequestID → RealIP → OTel → Logger → Recoverer ordering
// with the license gate innermost.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
	} else {
		r.Use(otelMiddleware.Handler)
	}

	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(a.ErrorHandler.Middleware)
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.RateLimit.RPS > 0 {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.RateLimit.RPS,
			a.Config.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.Use(a.Gate.Handler)

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.setupAPIRoutes(r)
	r.Handle("/", a.content)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	healthHandler := httphandlers.NewHealthHandler(license.NewHealthCheck(a.Validator), a.Logger)
	licenseHandler := httphandlers.NewLicenseHandler(a.Validator, a.Gate, a.ErrorHandler, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		r.Mount("/license", licenseHandler.Routes())
	})
}

// handleHome is the protected demo page
func (a *Application) handleHome(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "licensed",
		"service": config.AppName,
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Start begins serving and runs one validation up front so the first
// request does not pay for it. A configuration failure is returned; any
// other failure is left for the gate to present.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("invalid_behavior", a.Policy.Mode()))

	res, err := a.Validator.Validate(ctx, identity.Hints{})
	if err != nil {
		f := apperrors.AsFailure(err)
		if f.Fatal() {
			return f
		}
		a.Logger.WarnContext(ctx, "Startup license check failed",
			slog.String("kind", string(f.Kind)),
			slog.String("error", f.Message))
	} else {
		a.Logger.InfoContext(ctx, "Startup license check passed",
			slog.Bool("cached", res.Cached),
			slog.String("message", res.Message))
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run serves until SIGINT/SIGTERM or a server error
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "Received shutdown signal")

	return a.Stop(ctx)
}
