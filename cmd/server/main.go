package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/voiceflow/internal/app"
	"github.com/benvon/voiceflow/internal/config"
	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/handlers"
	"github.com/benvon/voiceflow/internal/logger"
	"github.com/benvon/voiceflow/internal/middleware"
	"github.com/benvon/voiceflow/internal/queue"
	"github.com/benvon/voiceflow/internal/workers"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

const (
	serviceName    = "voiceflow-api"
	reloadInterval = time.Minute
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Debug: debugMode, Component: "server"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("graph_dir", logger.SanitizePath(cfg.GraphDir)),
		zap.String("ai_provider", cfg.AIProvider),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, tracing := app.InitTracing(ctx, cfg, serviceName, zapLogger)
	defer shutdownTracing()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	redisClient, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	// The queue is optional; without it the enqueue endpoint answers 503.
	var jobQueue *queue.RabbitMQQueue
	if cfg.RabbitMQURL != "" {
		jobQueue, err = app.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_rabbitmq")
	} else {
		zapLogger.Warn("rabbitmq_not_configured_enqueue_disabled")
	}

	runRepo := database.NewRunRepository(db)
	mappingRepo := database.NewProjectMappingRepository(db)
	settingsRepo := database.NewAPISettingsRepository(db)

	deps, err := app.Build(cfg, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_pipeline", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			zapLogger.Warn("failed_to_close_graph", zap.Error(err))
		}
	}()
	if !deps.AI.Configured() {
		zapLogger.Warn("openai_api_key_not_configured")
	}
	if !deps.Todoist.Configured() {
		zapLogger.Warn("todoist_api_token_not_configured")
	}

	processor := deps.NewProcessor(
		workers.WithRunStore(runRepo),
		workers.WithMappingStore(mappingRepo),
	)

	notesOpts := []handlers.NotesOption{
		handlers.WithNotesRunStore(runRepo),
		handlers.WithNotesTimeout(cfg.JobTimeout),
	}
	checks := map[string]handlers.Check{
		"database": db.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if jobQueue != nil {
		notesOpts = append(notesOpts, handlers.WithNotesJobQueue(jobQueue))
		checks["rabbitmq"] = jobQueue.HealthCheck
	}

	notesHandler := handlers.NewNotesHandler(processor, deps.Workspace, zapLogger, notesOpts...)
	runsHandler := handlers.NewRunsHandler(runRepo, zapLogger)
	directivesHandler := handlers.NewDirectivesHandler(deps.Workspace, mappingRepo, zapLogger)
	mappingsHandler := handlers.NewMappingsHandler(deps.Workspace, mappingRepo, zapLogger)
	integrationsHandler := handlers.NewIntegrationsHandler(deps.Todoist, deps.Converter, zapLogger)
	healthChecker := handlers.NewHealthChecker(checks)
	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_spec", zap.Error(err))
	}

	var verifier *middleware.Verifier
	if cfg.JWKSURL != "" {
		keys := middleware.NewJWKSCache(cfg.JWKSURL, middleware.DefaultJWKSTTL, &http.Client{Timeout: 10 * time.Second})
		verifier = middleware.NewVerifier(keys, cfg.JWTIssuer, cfg.JWTAudience)
		zapLogger.Info("api_auth_enabled", zap.String("jwks_url", cfg.JWKSURL))
	} else {
		zapLogger.Warn("api_auth_disabled_jwks_url_not_configured")
	}

	corsReloader := middleware.NewCORSReloader(settingsRepo, cfg.FrontendURL, zapLogger, reloadInterval)
	rateLimitReloader, err := middleware.NewRateLimitReloader(redisClient, settingsRepo, cfg.RateLimit, zapLogger, reloadInterval)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader", zap.Error(err))
	}

	r := mux.NewRouter()

	// mux runs middleware in registration order, first registered outermost.
	if tracing {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.Version(handlers.VersionInfo{Version: version, Commit: commit})).Methods(http.MethodGet)
	openAPIHandler.RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	if verifier != nil {
		api.Use(middleware.Auth(verifier, zapLogger))
	}
	api.Use(rateLimitReloader.Middleware())

	// Synchronous processing is bounded by the job timeout instead of the
	// request timeout.
	notesHandler.RegisterRoutes(api.PathPrefix("/notes").Subrouter())

	timed := api.NewRoute().Subrouter()
	timed.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	runsHandler.RegisterRoutes(timed.PathPrefix("/runs").Subrouter())
	mappingsHandler.RegisterRoutes(timed.PathPrefix("/mappings").Subrouter())
	timed.HandleFunc("/directives/parse", directivesHandler.Parse).Methods(http.MethodPost)
	timed.HandleFunc("/todoist/projects", integrationsHandler.Projects).Methods(http.MethodGet)
	timed.HandleFunc("/todoist/labels", integrationsHandler.Labels).Methods(http.MethodGet)
	timed.HandleFunc("/converter/health", integrationsHandler.ConverterHealth).Methods(http.MethodGet)

	// Preflight requests; the CORS middleware has already answered them.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.JobTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go corsReloader.Start(ctx)
	go rateLimitReloader.Start(ctx)

	if jobQueue != nil {
		sweeper := queue.NewSweeper(jobQueue,
			queue.WithSweepInterval(cfg.DLQSweepInterval),
			queue.WithRetention(cfg.DLQRetention),
			queue.WithSweeperLogger(zapLogger),
		)
		go func() {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dlq_sweeper_stopped_with_error", zap.Error(err))
			}
		}()
	}

	go func() {
		zapLogger.Info("server_listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
