package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Mapping sources reported by the list endpoint.
const (
	MappingSourceConfig = "config"
	MappingSourceStored = "stored"
)

// MappingView is one effective project mapping.
type MappingView struct {
	models.ProjectMapping
	Source string `json:"source"`
}

// PutMappingRequest is the body of PUT /mappings/{tag}.
type PutMappingRequest struct {
	ProjectID   string `json:"project_id" validate:"required,max=100"`
	ProjectName string `json:"project_name" validate:"max=200"`
}

// MappingsHandler manages stored tag to project mappings.
type MappingsHandler struct {
	settings SettingsSource
	mappings database.MappingStore
	logger   *zap.Logger
}

// NewMappingsHandler creates a mappings handler.
func NewMappingsHandler(settings SettingsSource, mappings database.MappingStore, logger *zap.Logger) *MappingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingsHandler{settings: settings, mappings: mappings, logger: logger}
}

// RegisterRoutes registers the mapping routes on r, rooted at /api/v1/mappings.
func (h *MappingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.List).Methods(http.MethodGet)
	r.HandleFunc("/{tag}", h.Put).Methods(http.MethodPut)
	r.HandleFunc("/{tag}", h.Delete).Methods(http.MethodDelete)
}

// tagFromPath accepts "work" or "%23work" and returns "#work".
func tagFromPath(r *http.Request) (string, error) {
	return validation.NormalizeTag(mux.Vars(r)["tag"])
}

// List returns the effective mappings in match order.
func (h *MappingsHandler) List(w http.ResponseWriter, r *http.Request) {
	stored, err := h.mappings.List(r.Context())
	if err != nil {
		h.logger.Error("failed_to_list_project_mappings", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list mappings")
		return
	}

	storedTags := make(map[string]bool, len(stored))
	for _, m := range stored {
		storedTags[strings.ToLower(m.Tag)] = true
	}
	merged := database.MergeMappings(h.settings.Settings().ProjectMappings, stored)
	views := make([]MappingView, 0, len(merged))
	for _, m := range merged {
		source := MappingSourceConfig
		if storedTags[strings.ToLower(m.Tag)] {
			source = MappingSourceStored
		}
		views = append(views, MappingView{ProjectMapping: m, Source: source})
	}
	respondJSON(w, http.StatusOK, views)
}

// Put creates or replaces the stored mapping for a tag.
func (h *MappingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	tag, err := tagFromPath(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	var req PutMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	m := models.ProjectMapping{
		Tag:         tag,
		ProjectID:   strings.TrimSpace(req.ProjectID),
		ProjectName: validation.SanitizeText(req.ProjectName),
	}
	if err := h.mappings.Upsert(r.Context(), m); err != nil {
		h.logger.Error("failed_to_save_project_mapping", zap.String("tag", tag), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save mapping")
		return
	}
	h.logger.Info("project_mapping_saved", zap.String("tag", tag), zap.String("project_id", m.ProjectID))
	respondJSON(w, http.StatusOK, MappingView{ProjectMapping: m, Source: MappingSourceStored})
}

// Delete removes the stored mapping for a tag. Configured mappings cannot be
// removed here.
func (h *MappingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tag, err := tagFromPath(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	err = h.mappings.Delete(r.Context(), tag)
	if errors.Is(err, database.ErrMappingNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No stored mapping for "+tag)
		return
	}
	if err != nil {
		h.logger.Error("failed_to_delete_project_mapping", zap.String("tag", tag), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete mapping")
		return
	}
	h.logger.Info("project_mapping_deleted", zap.String("tag", tag))
	w.WriteHeader(http.StatusNoContent)
}
