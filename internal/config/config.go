package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/validation"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	DLQRetention     time.Duration
	DLQSweepInterval time.Duration
	RateLimit        string
	JWKSURL          string
	JWTIssuer        string
	JWTAudience      string

	OpenAIKey          string
	AIProvider         string
	AIModel            string
	AIBaseURL          string
	TranscriptionModel string
	TodoistToken       string
	TodoistBaseURL     string

	GraphDir    string
	PromptsFile string
	JobTimeout  time.Duration

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
	OTELInsecure    bool
	OTELSampleRatio float64

	Settings models.Settings
}

// Load loads configuration from environment variables. Infrastructure URLs
// are optional here; binaries that need them call RequireDatabase or
// RequireRabbitMQ.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		DLQRetention:     getEnvDuration("DLQ_RETENTION", 24*time.Hour),
		DLQSweepInterval: getEnvDuration("DLQ_SWEEP_INTERVAL", time.Hour),
		RateLimit:        getEnv("RATE_LIMIT", "60-M"),
		JWKSURL:          getEnv("JWKS_URL", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", ""),
		JWTAudience:      getEnv("JWT_AUDIENCE", ""),

		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		AIProvider:         getEnv("AI_PROVIDER", "openai"),
		AIModel:            getEnv("AI_MODEL", ""),
		AIBaseURL:          getEnv("AI_BASE_URL", ""),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", ""),
		TodoistToken:       getEnv("TODOIST_API_TOKEN", ""),
		TodoistBaseURL:     getEnv("TODOIST_BASE_URL", ""),

		GraphDir:    getEnv("GRAPH_DIR", ""),
		PromptsFile: getEnv("PROMPTS_FILE", ""),
		JobTimeout:  getEnvDuration("JOB_TIMEOUT", 10*time.Minute),

		WorkerDebugMode: getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
	}

	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	return cfg, nil
}

// RequireDatabase returns an error when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireRabbitMQ returns an error when RABBITMQ_URL is unset.
func (c *Config) RequireRabbitMQ() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for job queueing")
	}
	return nil
}

// LoadSettings builds pipeline settings from the defaults overlaid with the
// environment.
func LoadSettings() (models.Settings, error) {
	s := models.DefaultSettings()

	if v := getEnv("TODO_TRIGGER_TAGS", ""); v != "" {
		s.TodoTriggerTags = models.ParseTagList(v)
	}
	if v := getEnv("PROJECT_MAPPINGS", ""); v != "" {
		mappings, err := ParseProjectMappings(v)
		if err != nil {
			return s, fmt.Errorf("invalid PROJECT_MAPPINGS: %w", err)
		}
		s.ProjectMappings = mappings
	}
	s.DefaultMode = models.TranscriptionMode(getEnv("DEFAULT_MODE", string(s.DefaultMode)))
	if err := validation.ValidateTranscriptionMode(string(s.DefaultMode)); err != nil {
		return s, fmt.Errorf("invalid DEFAULT_MODE: %w", err)
	}
	s.HierarchicalTasks = getEnvBool("HIERARCHICAL_TASKS", s.HierarchicalTasks)
	s.DefaultProjectID = getEnv("DEFAULT_PROJECT_ID", s.DefaultProjectID)
	if v := getEnv("DEFAULT_LABELS", ""); v != "" {
		s.DefaultLabels = models.ParseTagList(v)
	}
	s.SummaryPrompt = getEnv("SUMMARY_PROMPT", s.SummaryPrompt)
	s.TaskPrompt = getEnv("TASK_PROMPT", s.TaskPrompt)
	s.CreatePage = getEnvBool("CREATE_PAGE", s.CreatePage)
	s.PageReference = models.PageReferenceMode(getEnv("PAGE_REFERENCE", string(s.PageReference)))
	if err := validation.ValidatePageReference(string(s.PageReference)); err != nil {
		return s, fmt.Errorf("invalid PAGE_REFERENCE: %w", err)
	}
	s.PageReferenceFormat = getEnv("PAGE_REFERENCE_FORMAT", s.PageReferenceFormat)
	s.AddTasksSection = getEnvBool("ADD_TASKS_SECTION", s.AddTasksSection)
	s.AutoDeleteAudio = getEnvBool("AUTO_DELETE_AUDIO", s.AutoDeleteAudio)
	s.AppendTimestamp = getEnvBool("APPEND_TIMESTAMP", s.AppendTimestamp)
	s.ConverterHost = getEnv("CONVERTER_HOST", s.ConverterHost)
	s.ConverterPort = getEnvInt("CONVERTER_PORT", s.ConverterPort)

	return s, nil
}

// ParseProjectMappings accepts a JSON object ({"#work": "123"}), a JSON array
// of mappings or an ordered "#work=123,#home=456" list. Order is preserved in
// every form.
func ParseProjectMappings(raw string) ([]models.ProjectMapping, error) {
	raw = strings.TrimSpace(raw)
	var mappings []models.ProjectMapping
	switch {
	case raw == "":
		return nil, nil
	case strings.HasPrefix(raw, "["):
		if err := json.Unmarshal([]byte(raw), &mappings); err != nil {
			return nil, fmt.Errorf("failed to decode mapping list: %w", err)
		}
	case strings.HasPrefix(raw, "{"):
		m, err := decodeOrderedObject(raw)
		if err != nil {
			return nil, err
		}
		mappings = m
	default:
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			tag, projectID, ok := strings.Cut(part, "=")
			if !ok {
				return nil, fmt.Errorf("mapping %q is not tag=project_id", part)
			}
			mappings = append(mappings, models.ProjectMapping{
				Tag:       strings.TrimSpace(tag),
				ProjectID: strings.TrimSpace(projectID),
			})
		}
	}

	for i := range mappings {
		mappings[i].Tag = strings.ToLower(strings.TrimSpace(mappings[i].Tag))
		if err := validation.ValidateTag(mappings[i].Tag); err != nil {
			return nil, err
		}
		if mappings[i].ProjectID == "" {
			return nil, fmt.Errorf("mapping %s has no project id", mappings[i].Tag)
		}
	}
	return mappings, nil
}

// decodeOrderedObject walks the object's tokens so keys keep their written order.
func decodeOrderedObject(raw string) ([]models.ProjectMapping, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode mapping object: %w", err)
	}
	var mappings []models.ProjectMapping
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode mapping object: %w", err)
		}
		tag, ok := key.(string)
		if !ok {
			return nil, errors.New("mapping key is not a string")
		}
		var projectID string
		if err := dec.Decode(&projectID); err != nil {
			return nil, fmt.Errorf("mapping %s: project id must be a string: %w", tag, err)
		}
		mappings = append(mappings, models.ProjectMapping{Tag: tag, ProjectID: projectID})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode mapping object: %w", err)
	}
	return mappings, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return defaultValue
}
