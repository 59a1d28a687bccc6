package models

import (
	"time"

	"github.com/google/uuid"
)

// RunState is a step of the voice note pipeline.
type RunState string

const (
	RunStateIdle              RunState = "idle"
	RunStateFetchingAudio     RunState = "fetching_audio"
	RunStateTranscribing      RunState = "transcribing"
	RunStateParsingDirectives RunState = "parsing_directives"
	RunStateSummarizing       RunState = "summarizing"
	RunStateExtractingTasks   RunState = "extracting_tasks"
	RunStateWritingPage       RunState = "writing_page"
	RunStatePushingTasks      RunState = "pushing_tasks"
	RunStateDone              RunState = "done"
	RunStateErrored           RunState = "errored"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateErrored
}

// Run is the persisted record of one voice note processing request.
type Run struct {
	ID             uuid.UUID   `json:"id"`
	Block          BlockRef    `json:"block"`
	State          RunState    `json:"state"`
	ErrorKind      string      `json:"error_kind,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	PageTitle      string      `json:"page_title,omitempty"`
	Transcript     string      `json:"transcript,omitempty"`
	Directives     *Directives `json:"directives,omitempty"`
	CreatedTaskIDs []string    `json:"created_task_ids,omitempty"`
	Warnings       []string    `json:"warnings,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// NewRun creates a run in the idle state for the given block.
func NewRun(block BlockRef) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.New(),
		Block:     block,
		State:     RunStateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
