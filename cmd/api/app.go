package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/xpmail/formhub/internal/api/handlers"
	"github.com/xpmail/formhub/internal/api/middleware"
	"github.com/xpmail/formhub/internal/config"
	"github.com/xpmail/formhub/internal/imagehost"
	"github.com/xpmail/formhub/internal/jobs"
	"github.com/xpmail/formhub/internal/notify"
	"github.com/xpmail/formhub/internal/observability"
	"github.com/xpmail/formhub/internal/repository"
	"github.com/xpmail/formhub/internal/service"
	"github.com/xpmail/formhub/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	meterProvider  observability.MeterProviderShutdown
	tracerProvider *sdktrace.TracerProvider
}

// routes bundles the handlers mounted by newHTTPServer.
type routes struct {
	health    *handlers.HealthHandler
	forms     *handlers.FormsHandler
	responses *handlers.ResponsesHandler
	public    *handlers.PublicHandler
	images    *handlers.ImagesHandler
	metrics   http.Handler
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		meterProvider  observability.MeterProviderShutdown
		metricsHandler http.Handler
		metrics        observability.FormMetrics
		err            error
	)

	if cfg.MetricsEnabled {
		meterProvider, metricsHandler, metrics, err = observability.NewMeterProvider(ctx, observability.MeterProviderConfig{
			ServiceName: cfg.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("create meter provider: %w", err)
		}

		if mp, ok := meterProvider.(metric.MeterProvider); ok {
			otel.SetMeterProvider(mp)
		}
	} else {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, cfg.OtelTracesExporter, cfg.ServiceName)
	if err != nil {
		shutdownMeter(meterProvider)

		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	} else {
		slog.Info("tracing not enabled (OTEL_TRACES_EXPORTER empty or unsupported)")
	}

	formsRepo := repository.NewFormsRepository(db)
	responsesRepo := repository.NewResponsesRepository(db)

	if err := formsRepo.VerifyIndexes(ctx); err != nil {
		// listings still work without the index, only slower
		slog.Warn("form listing index check failed", "error", err)
	}

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewResponseReapWorker(responsesRepo, cfg.ResponseReapBatchSize, metrics))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			jobs.MaintenanceQueueName: {MaxWorkers: cfg.RiverWorkers},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
	})
	if err != nil {
		shutdownTracer(tracerProvider)
		shutdownMeter(meterProvider)

		return nil, fmt.Errorf("create River client: %w", err)
	}

	formsRepo.SetReapInserter(riverClient)

	var emailSender notify.EmailSender

	if cfg.EmailFrom != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			shutdownTracer(tracerProvider)
			shutdownMeter(meterProvider)

			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		emailSender = notify.NewSESEmailSender(ses.NewFromConfig(awsCfg), cfg.EmailFrom)
	} else {
		slog.Warn("email notifications disabled (EMAIL_FROM not set)")
	}

	dispatcher := notify.NewDispatcher(emailSender, notify.NewDiscordPoster(cfg.WebhookTimeout), metrics)

	var uploader handlers.ImageUploader

	if cfg.ImgBBAPIKey != "" {
		uploader = imagehost.NewImgBBClient(cfg.ImgBBAPIKey)
	} else {
		slog.Warn("image uploads disabled (IMGBB_API_KEY not set)")
	}

	formsService := service.NewFormsService(formsRepo, service.FormsServiceOptions{
		PublicCacheSize: cfg.PublicFormCacheSize,
		PublicCacheTTL:  cfg.PublicFormCacheTTL,
		Metrics:         metrics,
	})
	responsesService := service.NewResponsesService(responsesRepo, formsRepo, cfg.CountMaxConcurrent)
	submissionService := service.NewSubmissionService(formsService, responsesService, dispatcher, metrics)

	server := newHTTPServer(cfg, routes{
		health:    handlers.NewHealthHandler(db),
		forms:     handlers.NewFormsHandler(formsService),
		responses: handlers.NewResponsesHandler(responsesService),
		public:    handlers.NewPublicHandler(formsService, submissionService),
		images:    handlers.NewImagesHandler(uploader),
		metrics:   metricsHandler,
	}, metrics, meterProvider, tracerProvider)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /public/, API key on /v1/).
// Handler chain: RequestID -> otelhttp(Logging(Metrics(mux))) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	rt routes,
	metrics observability.FormMetrics,
	meterProvider observability.MeterProviderShutdown,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	jsonBody := middleware.MaxBody(cfg.MaxRequestBodyBytes, metrics)
	limited := func(h http.HandlerFunc) http.Handler { return jsonBody(h) }

	submitLimiter := middleware.NewClientRateLimiter(cfg.SubmissionRateLimit, cfg.SubmissionRateBurst, cfg.TrustProxyHeaders)

	public := http.NewServeMux()
	public.HandleFunc("GET /health", rt.health.Check)
	public.HandleFunc("GET /ready", rt.health.Ready)
	public.HandleFunc("GET /public/forms/{id}", rt.public.GetForm)
	public.Handle("POST /public/forms/{id}/responses",
		middleware.RateLimit(submitLimiter, metrics)(limited(rt.public.Submit)))

	if rt.metrics != nil {
		public.Handle("GET /metrics", rt.metrics)
	}

	protected := http.NewServeMux()
	protected.Handle("POST /v1/forms", limited(rt.forms.Create))
	protected.HandleFunc("GET /v1/forms", rt.forms.List)
	protected.HandleFunc("GET /v1/forms/{id}", rt.forms.Get)
	protected.Handle("PUT /v1/forms/{id}", limited(rt.forms.Update))
	protected.HandleFunc("DELETE /v1/forms/{id}", rt.forms.Delete)

	protected.HandleFunc("GET /v1/forms/{id}/responses", rt.responses.List)
	protected.HandleFunc("GET /v1/forms/{id}/responses/count", rt.responses.Count)
	protected.HandleFunc("GET /v1/stats/submissions", rt.responses.Totals)

	protected.Handle("POST /v1/images",
		middleware.MaxBody(cfg.MaxImageBytes, metrics)(http.HandlerFunc(rt.images.Upload)))

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware.Auth(cfg.APIKey)(protected))
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for probes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/ready"
		}),
	}
	if mp, ok := meterProvider.(metric.MeterProvider); ok {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(mp))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log.
	inner := middleware.Logging(middleware.Metrics(metrics)(mux))
	handler := otelhttp.NewHandler(inner, "formhub-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout = 15 * time.Second
		// submissions wait for the notification, which may take a full webhook timeout
		writeTimeout = 45 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// Shutdown stops the server and River in order, then flushes telemetry. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter observability.MeterProviderShutdown) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := meter.Shutdown(ctx); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

func shutdownMeter(mp observability.MeterProviderShutdown) {
	if mp == nil {
		return
	}

	if err := mp.Shutdown(context.Background()); err != nil {
		slog.Error("shutdown meter provider after startup error", "error", err)
	}
}

func shutdownTracer(tp *sdktrace.TracerProvider) {
	if tp == nil {
		return
	}

	if err := observability.ShutdownTracerProvider(context.Background(), tp); err != nil {
		slog.Error("shutdown tracer provider after startup error", "error", err)
	}
}
