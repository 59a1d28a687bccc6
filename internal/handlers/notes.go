package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/queue"
	"github.com/benvon/voiceflow/internal/request"
	"github.com/benvon/voiceflow/internal/workers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ProcessRequest selects the block to process.
type ProcessRequest struct {
	Block models.BlockRef `json:"block"`
}

// EnqueueResponse is returned when a run was queued.
type EnqueueResponse struct {
	RunID string `json:"run_id"`
	JobID string `json:"job_id"`
}

// NotesHandler runs the voice note pipeline over HTTP.
type NotesHandler struct {
	processor *workers.NoteProcessor
	workspace workers.Workspace
	runs      database.RunStore
	jobQueue  queue.JobQueue
	timeout   time.Duration
	logger    *zap.Logger
}

// NotesOption configures a NotesHandler.
type NotesOption func(*NotesHandler)

// WithNotesRunStore enables enqueueing; queued runs must be persisted first.
func WithNotesRunStore(runs database.RunStore) NotesOption {
	return func(h *NotesHandler) { h.runs = runs }
}

// WithNotesJobQueue sets the queue used by the enqueue endpoint.
func WithNotesJobQueue(q queue.JobQueue) NotesOption {
	return func(h *NotesHandler) { h.jobQueue = q }
}

// WithNotesTimeout bounds synchronous processing.
func WithNotesTimeout(d time.Duration) NotesOption {
	return func(h *NotesHandler) { h.timeout = d }
}

// NewNotesHandler creates a notes handler.
func NewNotesHandler(processor *workers.NoteProcessor, workspace workers.Workspace, logger *zap.Logger, opts ...NotesOption) *NotesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &NotesHandler{
		processor: processor,
		workspace: workspace,
		timeout:   workers.DefaultJobTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the notes routes on r, which is expected to be
// rooted at /api/v1/notes.
func (h *NotesHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/process", h.Process).Methods(http.MethodPost)
	r.HandleFunc("/enqueue", h.Enqueue).Methods(http.MethodPost)
}

// Process runs the pipeline for a block and returns the finished run. A run
// that ended errored is answered with 422 and still carries the run record.
func (h *NotesHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.processor.Start(ctx, h.workspace, req.Block)
	if err != nil {
		var perr *workers.PipelineError
		if errors.As(err, &perr) && run != nil {
			respondJSON(w, http.StatusUnprocessableEntity, run)
			return
		}
		h.logger.Error("voice_note_process_failed",
			zap.String("block", req.Block.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to start processing")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// Enqueue persists an idle run and queues it for the worker.
func (h *NotesHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil || h.jobQueue == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Job queue is not configured")
		return
	}

	var req ProcessRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	ctx := r.Context()
	run := models.NewRun(req.Block)
	if err := h.runs.Create(ctx, run); err != nil {
		h.logger.Error("failed_to_create_run", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create run")
		return
	}

	job := queue.NewProcessNoteJob(run.ID, req.Block)
	if err := h.jobQueue.Enqueue(ctx, job); err != nil {
		h.logger.Error("failed_to_enqueue_voice_note_job",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
		now := time.Now().UTC()
		run.State = models.RunStateErrored
		run.ErrorKind = string(workers.KindInternal)
		run.ErrorMessage = "failed to enqueue job"
		run.UpdatedAt, run.CompletedAt = now, &now
		if uerr := h.runs.Update(context.WithoutCancel(ctx), run); uerr != nil {
			h.logger.Warn("run_state_save_failed", zap.String("run_id", run.ID.String()), zap.Error(uerr))
		}
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to enqueue job")
		return
	}

	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("job_id", job.ID.String()),
		zap.String("block", req.Block.String()),
	}
	if p := request.PrincipalFromContext(r); p != nil {
		fields = append(fields, zap.String("subject", p.Subject))
	}
	h.logger.Info("voice_note_job_enqueued", fields...)
	respondJSON(w, http.StatusAccepted, EnqueueResponse{RunID: run.ID.String(), JobID: job.ID.String()})
}
