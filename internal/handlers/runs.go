package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RunsHandler serves persisted run records.
type RunsHandler struct {
	runs   database.RunStore
	logger *zap.Logger
}

// NewRunsHandler creates a runs handler.
func NewRunsHandler(runs database.RunStore, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{runs: runs, logger: logger}
}

// RegisterRoutes registers the run routes on r, rooted at /api/v1/runs.
func (h *RunsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.List).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.Get).Methods(http.MethodGet)
}

// Get returns one run.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid run ID")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_get_run", zap.String("run_id", id.String()), zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to get run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// List returns the most recent runs, newest first. ?limit defaults to
// database.DefaultRunListLimit and is capped at database.MaxRunListLimit.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = min(n, database.MaxRunListLimit)
	}

	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed_to_list_runs", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}
