// Package app builds the clients shared by the server, the worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/voiceflow/internal/config"
	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/benvon/voiceflow/internal/queue"
	"github.com/benvon/voiceflow/internal/retry"
	"github.com/benvon/voiceflow/internal/services/ai"
	"github.com/benvon/voiceflow/internal/services/converter"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"github.com/benvon/voiceflow/internal/session"
	"github.com/benvon/voiceflow/internal/telemetry"
	"github.com/benvon/voiceflow/internal/workers"
	"go.uber.org/zap"
)

// Deps holds the pipeline's collaborators for one process.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	AI        ai.AIProvider
	Todoist   *todoist.Client
	Converter *converter.Client
	Prompts   *prompts.Library
	Workspace *session.Session
}

// Build creates every client from cfg. A missing OpenAI key or Todoist token
// is not an error here; the pipeline reports it per run.
func Build(cfg *config.Config, logger *zap.Logger, debug bool) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	library, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	provider, err := NewAIProvider(cfg, logger, debug)
	if err != nil {
		return nil, err
	}
	return &Deps{
		Config:    cfg,
		Logger:    logger,
		AI:        provider,
		Todoist:   NewTodoistClient(cfg, logger),
		Converter: converter.NewClient(cfg.Settings.ConverterHost, cfg.Settings.ConverterPort, logger),
		Prompts:   library,
		Workspace: session.New(cfg.GraphDir, cfg.Settings),
	}, nil
}

// NewAIProvider resolves cfg.AIProvider through the default registry.
func NewAIProvider(cfg *config.Config, logger *zap.Logger, debug bool) (ai.AIProvider, error) {
	name := cfg.AIProvider
	if name == "" {
		name = "openai"
	}
	provider, err := ai.DefaultRegistry().GetProvider(name, ai.ProviderConfig{Options: ai.Options{
		APIKey:             cfg.OpenAIKey,
		BaseURL:            cfg.AIBaseURL,
		Model:              cfg.AIModel,
		TranscriptionModel: cfg.TranscriptionModel,
		Logger:             logger,
		DebugMode:          debug,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	return provider, nil
}

// NewTodoistClient returns a client for cfg.TodoistToken. Without a token every
// call answers todoist.ErrNotConfigured.
func NewTodoistClient(cfg *config.Config, logger *zap.Logger) *todoist.Client {
	return todoist.NewClient(todoist.Options{
		Token:   cfg.TodoistToken,
		BaseURL: cfg.TodoistBaseURL,
		Logger:  logger,
	})
}

// NewProcessor returns a note processor over the built clients.
func (d *Deps) NewProcessor(opts ...workers.Option) *workers.NoteProcessor {
	return workers.NewNoteProcessor(d.AI, d.Todoist, d.Prompts, d.Logger, opts...)
}

// Close releases the graph directory.
func (d *Deps) Close() error {
	if d.Workspace == nil {
		return nil
	}
	return d.Workspace.Close()
}

// Connection retry bounds for RabbitMQ, which often starts after the API.
const (
	rabbitMQAttempts     = 10
	rabbitMQInitialDelay = 2 * time.Second
	rabbitMQMaxDelay     = 30 * time.Second
)

// ConnectRabbitMQ dials url with exponential backoff until it succeeds, the
// attempts run out or ctx is done.
func ConnectRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*queue.RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.Policy{
		MaxAttempts:     rabbitMQAttempts,
		InitialInterval: rabbitMQInitialDelay,
		MaxInterval:     rabbitMQMaxDelay,
		ShouldRetry:     func(error) bool { return true },
		Notify: func(err error, attempt int, wait time.Duration) {
			logger.Warn("failed_to_connect_to_rabbitmq_retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", rabbitMQAttempts),
				zap.Duration("retry_delay", wait),
				zap.Error(err),
			)
		},
	}
	q, err := retry.Do(ctx, policy, func(context.Context) (*queue.RabbitMQQueue, error) {
		return queue.NewRabbitMQQueue(url, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return q, nil
}

// InitTracing installs an OTLP tracer when enabled and returns its shutdown
// func, which is never nil.
func InitTracing(ctx context.Context, cfg *config.Config, service string, logger *zap.Logger) (func(), bool) {
	noop := func() {}
	if !cfg.OTELEnabled {
		return noop, false
	}
	if cfg.OTELEndpoint == "" {
		logger.Warn("otel_enabled_but_endpoint_not_configured")
		return noop, false
	}
	tp, err := telemetry.InitTracer(ctx, telemetry.TracerOptions{
		ServiceName: service,
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return noop, false
	}
	logger.Info("otel_tracer_initialized",
		zap.String("endpoint", cfg.OTELEndpoint),
		zap.Float64("sample_ratio", cfg.OTELSampleRatio),
	)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx, tp); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}, true
}
