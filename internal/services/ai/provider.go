package ai

import (
	"context"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/prompts"
)

// AIProvider is the interface for AI providers
type AIProvider interface {
	// Configured reports whether a credential is present.
	Configured() bool

	// Transcribe converts an audio file to text.
	Transcribe(ctx context.Context, file models.AudioFile) (string, error)

	// Summarize asks for a title and summary of a transcript.
	Summarize(ctx context.Context, transcript string, prompt prompts.Prompt) (SummaryResult, error)

	// ExtractTasks asks for a task plan. Content that does not decode into a
	// plan yields ErrMalformedResponse.
	ExtractTasks(ctx context.Context, text string, prompt prompts.Prompt) (TaskPlan, error)
}

// ProviderConfig carries the settings a provider factory needs.
type ProviderConfig struct {
	Options
}

// ProviderFactory creates an AI provider based on the provider type
type ProviderFactory func(cfg ProviderConfig) (AIProvider, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// DefaultRegistry returns a registry with the built-in providers registered.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register("openai", func(cfg ProviderConfig) (AIProvider, error) {
		return NewOpenAIProvider(cfg.Options), nil
	})
	return r
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, cfg ProviderConfig) (AIProvider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(cfg)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
