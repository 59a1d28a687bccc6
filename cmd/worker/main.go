package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/benvon/voiceflow/internal/app"
	"github.com/benvon/voiceflow/internal/config"
	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/logger"
	"github.com/benvon/voiceflow/internal/queue"
	"github.com/benvon/voiceflow/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := errors.Join(cfg.RequireDatabase(), cfg.RequireRabbitMQ()); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Debug: debugMode, Component: "worker"})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("graph_dir", logger.SanitizePath(cfg.GraphDir)),
		zap.String("ai_provider", cfg.AIProvider),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Duration("job_timeout", cfg.JobTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, _ := app.InitTracing(ctx, cfg, "voiceflow-worker", zapLogger)
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

	jobQueue, err := app.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	deps, err := app.Build(cfg, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_pipeline", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			zapLogger.Warn("failed_to_close_graph", zap.Error(err))
		}
	}()

	runRepo := database.NewRunRepository(db)
	processor := deps.NewProcessor(
		workers.WithRunStore(runRepo),
		workers.WithMappingStore(database.NewProjectMappingRepository(db)),
	)
	runner := workers.NewJobRunner(processor, deps.Workspace, runRepo, jobQueue, cfg.JobTimeout, zapLogger)

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

	zapLogger.Info("worker_started_consuming")
	if err := runner.Run(ctx, cfg.RabbitMQPrefetch); err != nil {
		zapLogger.Error("worker_stopped_with_error", zap.Error(err))
	}
	zapLogger.Info("worker_stopped")
}
