package queue

import (
	"fmt"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeProcessNote runs the voice note pipeline for one block
	JobTypeProcessNote JobType = "process_note"
)

// DefaultMaxRetries is how often a transiently failed job is re-published.
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       JobType         `json:"type"`
	RunID      uuid.UUID       `json:"run_id"`
	Block      models.BlockRef `json:"block"`
	NotBefore  *time.Time      `json:"not_before,omitempty"`
	NotAfter   *time.Time      `json:"not_after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// NewProcessNoteJob creates a job that processes block under the given run.
func NewProcessNoteJob(runID uuid.UUID, block models.BlockRef) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeProcessNote,
		RunID:      runID,
		Block:      block,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate checks that the job can be processed.
func (j *Job) Validate() error {
	if j.Type != JobTypeProcessNote {
		return fmt.Errorf("unknown job type %q", j.Type)
	}
	if j.RunID == uuid.Nil {
		return fmt.Errorf("job %s has no run id", j.ID)
	}
	if j.Block.Page == "" {
		return fmt.Errorf("job %s has no block page", j.ID)
	}
	return nil
}

// ShouldProcess reports whether the job is inside its processing window.
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry returns a copy of the job scheduled after delay with the retry
// count incremented.
func (j *Job) Retry(delay time.Duration) *Job {
	next := *j
	next.RetryCount++
	notBefore := time.Now().Add(delay)
	next.NotBefore = &notBefore
	return &next
}
