package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/directive"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/validation"
	"go.uber.org/zap"
)

// ParseRequest is the input of the directive parser.
type ParseRequest struct {
	Transcript string `json:"transcript" validate:"required,max=100000"`
	BlockText  string `json:"block_text" validate:"max=100000"`
}

// SettingsSource returns the settings the pipeline would use.
type SettingsSource interface {
	Settings() models.Settings
}

// DirectivesHandler runs the directive parser without side effects.
type DirectivesHandler struct {
	settings SettingsSource
	mappings database.MappingStore
	logger   *zap.Logger
}

// NewDirectivesHandler creates a directives handler. mappings may be nil.
func NewDirectivesHandler(settings SettingsSource, mappings database.MappingStore, logger *zap.Logger) *DirectivesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectivesHandler{settings: settings, mappings: mappings, logger: logger}
}

// effectiveSettings merges stored mappings over the configured ones.
func (h *DirectivesHandler) effectiveSettings(ctx context.Context) models.Settings {
	s := h.settings.Settings()
	if h.mappings == nil {
		return s
	}
	stored, err := h.mappings.List(ctx)
	if err != nil {
		h.logger.Warn("project_mappings_load_failed", zap.Error(err))
		return s
	}
	s.ProjectMappings = database.MergeMappings(s.ProjectMappings, stored)
	return s
}

// Parse returns the directives found in a transcript and its block text,
// along with the hashtags already written in the block.
func (h *DirectivesHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	blockText := validation.SanitizeText(req.BlockText)
	d := directive.Parse(validation.SanitizeText(req.Transcript), blockText, h.effectiveSettings(r.Context()))
	respondJSON(w, http.StatusOK, models.ParseResult{Directives: d, BlockTags: directive.BlockTags(blockText)})
}
