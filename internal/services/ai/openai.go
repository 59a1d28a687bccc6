package ai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/prompts"
	"github.com/benvon/voiceflow/internal/retry"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default chat model
	DefaultOpenAIModel = "gpt-5-nano"
	// DefaultTranscriptionModel is the speech-to-text model
	DefaultTranscriptionModel = "whisper-1"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds a single API attempt
	DefaultTimeout = 120 * time.Second

	// DefaultMaxCompletionTokens applies to task extraction and generic completions
	DefaultMaxCompletionTokens = 4000
	// SummaryMaxCompletionTokens applies to summarization
	SummaryMaxCompletionTokens = 500

	systemPrompt = "You are a helpful assistant that summarizes and extracts information from transcripts."
)

var (
	completionsSuffixRe = regexp.MustCompile(`/(?:chat/)?completions\s*$`)
	chatSuffixRe        = regexp.MustCompile(`/chat\s*$`)
)

// NormalizeBaseURL turns a configured endpoint into an API base URL. A full
// ".../chat/completions" endpoint is accepted and trimmed back to its base.
func NormalizeBaseURL(endpoint string) string {
	u := strings.TrimSpace(endpoint)
	if u == "" {
		return DefaultOpenAIBaseURL
	}
	u = completionsSuffixRe.ReplaceAllString(u, "")
	u = chatSuffixRe.ReplaceAllString(u, "")
	u = strings.TrimRight(u, "/")
	if u == "" {
		return DefaultOpenAIBaseURL
	}
	return u
}

// Options configures an OpenAIProvider.
type Options struct {
	APIKey             string
	BaseURL            string
	Model              string
	TranscriptionModel string
	Timeout            time.Duration
	Policy             retry.Policy
	HTTPClient         *http.Client
	Logger             *zap.Logger
	DebugMode          bool
}

// OpenAIProvider implements the AIProvider interface using OpenAI's API
type OpenAIProvider struct {
	client             openai.Client
	apiKey             string
	model              string
	transcriptionModel string
	policy             retry.Policy
	logger             *zap.Logger
	debugMode          bool
}

var _ AIProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI provider. The SDK's own retries are
// disabled; every call goes through opts.Policy instead.
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if opts.TranscriptionModel == "" {
		opts.TranscriptionModel = DefaultTranscriptionModel
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(NormalizeBaseURL(opts.BaseURL)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	p := &OpenAIProvider{
		client:             client,
		apiKey:             opts.APIKey,
		model:              opts.Model,
		transcriptionModel: opts.TranscriptionModel,
		policy:             opts.Policy,
		logger:             opts.Logger,
		debugMode:          opts.DebugMode,
	}
	if p.policy.Notify == nil {
		p.policy.Notify = p.logRetry
	}
	return p
}

// fixedTemperatureModels only accept the default sampling temperature and
// answer 400 unsupported_value when one is sent.
var fixedTemperatureModels = []string{"gpt-5", "o1", "o3", "o4"}

// AcceptsTemperature reports whether model takes a temperature parameter.
func AcceptsTemperature(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range fixedTemperatureModels {
		if m == prefix || strings.HasPrefix(m, prefix+"-") {
			return false
		}
	}
	return true
}

// Configured reports whether an API key was supplied.
func (p *OpenAIProvider) Configured() bool {
	return strings.TrimSpace(p.apiKey) != ""
}

func (p *OpenAIProvider) logRetry(err error, attempt int, wait time.Duration) {
	p.logger.Warn("llm_api_retry",
		zap.Int("attempt", attempt),
		zap.Duration("wait", wait),
		zap.Error(err),
	)
}

// Transcribe uploads the audio file and returns the recognized text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, file models.AudioFile) (string, error) {
	if !p.Configured() {
		return "", ErrMissingAPIKey
	}

	runID := ExtractRunID(ctx)
	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "transcribe"),
			zap.String("model", p.transcriptionModel),
			zap.String("file_name", file.Name),
			zap.String("content_type", file.ContentType),
			zap.Int("file_size", len(file.Data)),
			zap.String("run_id", runID),
		)
	}

	start := time.Now()
	text, err := retry.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		params := openai.AudioTranscriptionNewParams{
			File:  openai.File(bytes.NewReader(file.Data), file.Name, file.ContentType),
			Model: openai.AudioModel(p.transcriptionModel),
		}
		resp, err := p.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return "", toHTTPError(err)
		}
		return resp.Text, nil
	})
	latency := time.Since(start)
	if err != nil {
		p.logger.Error("transcription_failed",
			zap.String("run_id", runID),
			zap.String("file_name", file.Name),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "transcribe"),
			zap.Int("response_length", len(text)),
			zap.String("response_preview", preview(text, false)),
			zap.String("run_id", runID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return text, nil
}

// Complete sends prompt as the user message and returns the trimmed content
// of the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, operation, prompt string, temperature float64, maxTokens int64) (string, error) {
	if !p.Configured() {
		return "", ErrMissingAPIKey
	}

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	sendTemperature := AcceptsTemperature(p.model)
	if sendTemperature {
		req.Temperature = openai.Float(temperature)
	}

	runID := ExtractRunID(ctx)
	requestID := ExtractRequestID(ctx)
	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", operation),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", preview(prompt, true)),
			zap.Float64("temperature", temperature),
			zap.Bool("temperature_sent", sendTemperature),
			zap.String("run_id", runID),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	content, err := retry.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		resp, err := p.client.Chat.Completions.New(ctx, req)
		if err != nil {
			return "", toHTTPError(err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoChoicesInResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
	latency := time.Since(start)
	if err != nil {
		if p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", operation),
				zap.String("model", p.model),
				zap.Error(err),
				zap.String("run_id", runID),
				zap.String("request_id", requestID),
				zap.Duration("latency_ms", latency),
			)
		}
		return "", fmt.Errorf("failed to %s: %w", strings.ReplaceAll(operation, "_", " "), err)
	}

	content = strings.TrimSpace(content)
	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", operation),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", preview(content, true)),
			zap.String("run_id", runID),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// Summarize renders the prompt with the transcript and parses the reply.
func (p *OpenAIProvider) Summarize(ctx context.Context, transcript string, prompt prompts.Prompt) (SummaryResult, error) {
	content, err := p.Complete(ctx, "summarize", prompt.Render(transcript), prompt.Temp(), SummaryMaxCompletionTokens)
	if err != nil {
		return SummaryResult{}, err
	}
	if content == "" {
		return SummaryResult{}, ErrEmptyResponse
	}
	return ParseSummary(content), nil
}

// ExtractTasks renders the task prompt with text and decodes the plan.
func (p *OpenAIProvider) ExtractTasks(ctx context.Context, text string, prompt prompts.Prompt) (TaskPlan, error) {
	content, err := p.Complete(ctx, "extract_tasks", prompt.Render(text), prompt.Temp(), DefaultMaxCompletionTokens)
	if err != nil {
		return TaskPlan{}, err
	}
	if content == "" {
		return TaskPlan{}, ErrEmptyResponse
	}
	plan, err := DecodeTaskPlan(content)
	if err != nil {
		p.logger.Warn("task_plan_decode_failed",
			zap.String("run_id", ExtractRunID(ctx)),
			zap.String("response_preview", preview(content, false)),
			zap.Error(err),
		)
		return TaskPlan{}, err
	}
	return plan, nil
}
