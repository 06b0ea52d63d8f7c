package app

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"janitor/internal/config"
	apierrors "janitor/internal/errors"
	"janitor/internal/infrastructure"
	"janitor/internal/jobs"
	"janitor/internal/metrics"
	customMiddleware "janitor/internal/middleware"
	"janitor/internal/reporting"
	"janitor/internal/scheduler"
	"janitor/internal/schema"
	"janitor/internal/services"
	"janitor/internal/store"
	"janitor/internal/swagger"
	handlers "janitor/internal/transport/http"
	"janitor/internal/uploads"
	"janitor/internal/web"
	ws "janitor/internal/websocket"
)

// MetricsPath is where the metrics exposition is mounted
const MetricsPath = "/metrics"

// Application holds every bound subsystem
type Application struct {
	Config  *config.Config
	Logging *infrastructure.Logging
	Logger  *slog.Logger

	// Jobs is the scheduled job list computed from the configuration
	Jobs       []scheduler.JobSpec
	MetricsDir string

	// Bound by extensions, in order
	DB         *store.DB
	Moment     *web.Moment
	Migrations []int
	Bootstrap  *web.Bootstrap
	Schema     *schema.Schema
	Uploads    *uploads.Registry
	Documents  *uploads.Set
	Scheduler  *scheduler.Scheduler

	Pages    *web.Renderer
	Hub      *ws.Hub
	Reporter reporting.Reporter
	OTel     *infrastructure.OTelProviders
	Registry *prometheus.Registry
	Shard    *metrics.Shard
	Metrics  *metrics.Set
	API      *swagger.API
	Router   *chi.Mux

	// OTelRegistry holds the per-process OpenTelemetry instruments. It is
	// not served at MetricsPath; its series carry no pid and are not summed.
	OTelRegistry *prometheus.Registry

	// Handler is the server entry point: /metrics beside Router
	Handler http.Handler
	Server  *http.Server

	jobStore  scheduler.JobStore
	processor jobs.Processor
	recorder  *jobs.Recorder
	logOutput io.Writer
	closeOnce sync.Once
	closeErr  error
}

// Option customizes New
type Option func(*Application)

// WithJobStore replaces the job store selected by SCHEDULER_JOBSTORE
func WithJobStore(s scheduler.JobStore) Option {
	return func(a *Application) {
		a.jobStore = s
	}
}

// WithProcessor sets the work done by each run_loop cycle
func WithProcessor(p jobs.Processor) Option {
	return func(a *Application) {
		a.processor = p
	}
}

// WithLogOutput sets the console log destination (default stderr)
func WithLogOutput(w io.Writer) Option {
	return func(a *Application) {
		a.logOutput = w
	}
}

// New builds the application from cfg, or from config.Load when cfg is
// nil. Any failure is fatal: bound subsystems are released and no
// application is returned.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	a, err := build(cfg, opts...)
	if err != nil {
		if a != nil {
			a.Close()
		}
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, apierrors.NewConfigError("failed to load configuration", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, apierrors.NewConfigError("invalid configuration", err)
	}

	a := &Application{
		Config:    cfg,
		logOutput: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.Logging = infrastructure.NewLogging(a.logOutput, cfg.Debug)
	a.Logger = infrastructure.WithComponent(a.Logging.Logger, "app")
	if a.processor == nil {
		a.processor = jobs.NewDefaultProcessor(a.Logging.Logger)
	}

	a.Jobs = jobs.Definitions(cfg.CheckPeriod(), jobs.ProcessorFunc(a.process))

	dir, err := metrics.PrepareDir(cfg.MetricsDir())
	if err != nil {
		return a, err
	}
	a.MetricsDir = dir

	if err := a.initObservability(); err != nil {
		return a, err
	}

	for _, ext := range extensions() {
		if err := ext.Init(a); err != nil {
			return a, fmt.Errorf("failed to initialize %s: %w", ext.Name(), err)
		}
		a.Logger.Debug("extension initialized", slog.String("extension", ext.Name()))
	}
	if err := a.Scheduler.Start(); err != nil {
		return a, apierrors.NewSchedulerError("failed to start scheduler", err)
	}

	if err := a.setupRouter(); err != nil {
		return a, err
	}

	if cfg.FileLogging() {
		if _, err := a.Logging.AttachFile(cfg.LogFile, cfg.LogLevel); err != nil {
			return a, apierrors.NewLoggingError("failed to open log file", err)
		}
		a.Logger.Info("janitor app started")
	}

	if err := metrics.Register(a.Registry, a.MetricsDir); err != nil {
		return a, apierrors.NewMetricsError("failed to register metrics collector", err)
	}
	root := chi.NewRouter()
	root.Handle(MetricsPath, metrics.Handler(a.Registry))
	root.Handle(MetricsPath+"/*", metrics.Handler(a.Registry))
	root.Mount("/", a.Router)
	a.Handler = root

	a.createServer()
	return a, nil
}

// initObservability creates the pieces every extension may use: the
// metrics shard, the Prometheus registry, OpenTelemetry, error reporting
// and the live run feed
func (a *Application) initObservability() error {
	shard, err := metrics.OpenShard(a.MetricsDir)
	if err != nil {
		return apierrors.NewMetricsError("failed to open metrics shard", err)
	}
	a.Shard = shard
	a.Metrics = metrics.NewSet(shard)
	a.Registry = prometheus.NewRegistry()
	a.OTelRegistry = prometheus.NewRegistry()

	var traceOut io.Writer
	if a.Config.OTelTraceExporter == "stdout" {
		traceOut = a.logOutput
	}
	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfig{
		ServiceName:    infrastructure.ServiceName,
		ServiceVersion: infrastructure.ServiceVersion,
		TraceExporter:  a.Config.OTelTraceExporter,
		TraceWriter:    traceOut,
		Registerer:     a.OTelRegistry,
	}, a.Logger)
	if err != nil {
		return apierrors.NewMetricsError("failed to initialize OpenTelemetry", err)
	}
	a.OTel = providers

	environment := "production"
	if a.Config.Debug {
		environment = "development"
	}
	a.Reporter = reporting.New(reporting.Options{
		DSN:         a.Config.SentryDSN,
		Environment: environment,
		Release:     infrastructure.ServiceName + "@" + infrastructure.ServiceVersion,
	}, a.Logger)

	a.Hub = ws.NewHub(a.Logging.Logger)
	a.Hub.Start()

	a.Pages = web.NewRenderer()
	return nil
}

// process is the run_loop job body
func (a *Application) process(ctx context.Context) error {
	if a.recorder == nil {
		return a.processor.Process(ctx)
	}
	return a.recorder.Process(ctx)
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	logger := a.Logging.Logger

	problems := apierrors.NewErrorHandler(logger, a.Config.Debug).
		WithReporter(a.Reporter.CaptureError)

	jobService := services.NewJobService(a.Scheduler, a.DB, logger)
	docService := services.NewDocumentService(a.Documents, a.DB, a.Metrics, logger)
	healthService := services.NewHealthService(infrastructure.ServiceVersion, services.HealthDeps{
		DB:        a.DB,
		Scheduler: a.Scheduler,
		Clients:   a.Hub,
		UploadDir: a.Documents.Destination(),
	}, logger)

	apiHandler := handlers.NewAPIHandler(
		jobService,
		docService,
		handlers.NewHealthHandler(healthService, logger),
		a.Schema,
		problems,
		a.Uploads.URL,
		logger,
	)

	api, err := swagger.Load(a.Config.SwaggerDir, a.Config.SwaggerFile, apiHandler.Resolver(),
		swagger.WithErrorFunc(problems.HandleError),
		swagger.WithUI(true))
	if err != nil {
		return apierrors.NewAPISpecError("failed to load API description", err)
	}
	a.API = api

	if err := a.Pages.AddFuncs(template.FuncMap{
		"api_base":   api.BasePath,
		"upload_url": a.Uploads.URL,
	}); err != nil {
		return err
	}
	if err := a.Pages.Parse(); err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	errorsHandler := handlers.NewErrorsHandler(a.Pages, problems, api.BasePath(), logger)
	limit := customMiddleware.MaxBytes(a.Config.MaxContentLength)

	r := chi.NewRouter()

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTel)
	if err != nil {
		return apierrors.NewMetricsError("failed to create OpenTelemetry middleware", err)
	}
	r.Use(otelMiddleware.WithObserver(a.Metrics).Handler)
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.StructuredLogger(logger))
	r.Use(customMiddleware.Recoverer(logger, errorsHandler.Panic))

	headers := customMiddleware.DefaultSecureHeaders()
	headers.DevMode = a.Config.Debug
	r.Use(headers.Handler)

	if a.Config.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.RateLimit.RPS,
			a.Config.RateLimit.Burst,
			problems,
			logger,
		).Handler)
	}
	r.Use(a.Reporter.Middleware)

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	r.Group(func(r chi.Router) {
		r.Use(limit)
		handlers.NewSiteHandler(a.Pages, jobService, docService, errorsHandler, logger).Routes(r)
		// the API router inherits the error handlers set above
		r.Mount(api.BasePath(), api.Router())
	})
	r.Mount(uploads.URLPrefix, a.Uploads.Routes())
	r.Handle("/ws/runs", ws.NewHandler(a.Hub))

	a.Router = r
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts everything down
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "server listening",
			slog.String("addr", a.Server.Addr),
			slog.String("version", infrastructure.ServiceVersion))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop shuts the server down gracefully and releases every subsystem
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases every bound subsystem. Running jobs are waited for.
// It is safe to call more than once.
func (a *Application) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *Application) close() error {
	var errs []error

	if a.Scheduler != nil {
		if err := a.Scheduler.Shutdown(true); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.OTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if a.Reporter != nil {
		a.Reporter.Flush(2 * time.Second)
	}
	if a.Shard != nil {
		if err := a.Shard.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Logger != nil {
		a.Logger.Info("application shutdown complete")
	}
	if a.Logging != nil {
		if err := a.Logging.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
