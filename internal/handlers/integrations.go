package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/voiceflow/internal/retry"
	"github.com/benvon/voiceflow/internal/services/converter"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"go.uber.org/zap"
)

// TodoistLookup lists Todoist projects and labels.
type TodoistLookup interface {
	Projects(ctx context.Context) ([]todoist.Project, error)
	Labels(ctx context.Context) ([]todoist.Label, error)
}

// ConverterStatus reports the converter sidecar health.
type ConverterStatus interface {
	Health(ctx context.Context) (*converter.Health, error)
}

var (
	_ TodoistLookup   = (*todoist.Client)(nil)
	_ ConverterStatus = (*converter.Client)(nil)
)

// IntegrationsHandler exposes read-only lookups against external services.
type IntegrationsHandler struct {
	todoist   TodoistLookup
	converter ConverterStatus
	logger    *zap.Logger
}

// NewIntegrationsHandler creates an integrations handler.
func NewIntegrationsHandler(todoistClient TodoistLookup, converterClient ConverterStatus, logger *zap.Logger) *IntegrationsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationsHandler{todoist: todoistClient, converter: converterClient, logger: logger}
}

func (h *IntegrationsHandler) respondTodoistError(w http.ResponseWriter, event string, err error) {
	var httpErr *retry.HTTPError
	switch {
	case errors.Is(err, todoist.ErrNotConfigured):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Todoist API token is not configured")
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized:
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Todoist rejected the API token (401 Unauthorized)")
	default:
		h.logger.Warn(event, zap.Error(err))
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Todoist request failed")
	}
}

// Projects lists Todoist projects.
func (h *IntegrationsHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.todoist.Projects(r.Context())
	if err != nil {
		h.respondTodoistError(w, "todoist_projects_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

// Labels lists Todoist labels.
func (h *IntegrationsHandler) Labels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.todoist.Labels(r.Context())
	if err != nil {
		h.respondTodoistError(w, "todoist_labels_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, labels)
}

// ConverterHealthResponse describes the sidecar.
type ConverterHealthResponse struct {
	Ready  bool              `json:"ready"`
	Health *converter.Health `json:"health,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// ConverterHealth reports whether the AAC converter sidecar can convert files.
// An unreachable sidecar is a normal answer, not an error.
func (h *IntegrationsHandler) ConverterHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.converter.Health(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, ConverterHealthResponse{Error: sanitizeErrorMessage(err.Error())})
		return
	}
	respondJSON(w, http.StatusOK, ConverterHealthResponse{Ready: health.Ready(), Health: health})
}
