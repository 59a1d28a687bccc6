package queue

import (
	"testing"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/google/uuid"
)

func TestNewProcessNoteJob(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	block := models.BlockRef{Page: "journals/2026_10_14.md", ID: "abc"}

	job := NewProcessNoteJob(runID, block)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeProcessNote {
		t.Errorf("Expected job type to be %s, got %s", JobTypeProcessNote, job.Type)
	}
	if job.RunID != runID {
		t.Errorf("Expected run ID to be %s, got %s", runID, job.RunID)
	}
	if job.Block != block {
		t.Errorf("Expected block %v, got %v", block, job.Block)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries to be %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}
	if err := job.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestJob_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Job {
		return NewProcessNoteJob(uuid.New(), models.BlockRef{Page: "pages/a.md", Line: 1})
	}

	tests := []struct {
		name    string
		mutate  func(j *Job)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Job) {}},
		{name: "unknown type", mutate: func(j *Job) { j.Type = "reprocess_user" }, wantErr: true},
		{name: "no run id", mutate: func(j *Job) { j.RunID = uuid.Nil }, wantErr: true},
		{name: "no page", mutate: func(j *Job) { j.Block.Page = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := valid()
			tt.mutate(j)
			if err := j.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no time constraints", want: true},
		{name: "not before in past", notBefore: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not before in future", notBefore: timePtr(now.Add(time.Hour)), want: false},
		{name: "not after in past", notAfter: timePtr(now.Add(-time.Hour)), want: false},
		{name: "not after in future", notAfter: timePtr(now.Add(time.Hour)), want: true},
		{name: "within window", notBefore: timePtr(now.Add(-time.Hour)), notAfter: timePtr(now.Add(time.Hour)), want: true},
		{name: "window not started", notBefore: timePtr(now.Add(time.Hour)), notAfter: timePtr(now.Add(2 * time.Hour)), want: false},
		{name: "window over", notBefore: timePtr(now.Add(-2 * time.Hour)), notAfter: timePtr(now.Add(-time.Hour)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{ID: uuid.New(), Type: JobTypeProcessNote, NotBefore: tt.notBefore, NotAfter: tt.notAfter}
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_CanRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "no retries yet", retryCount: 0, maxRetries: 3, want: true},
		{name: "max retries minus one", retryCount: 2, maxRetries: 3, want: true},
		{name: "at max retries", retryCount: 3, maxRetries: 3, want: false},
		{name: "retries disabled", retryCount: 0, maxRetries: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			if got := job.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewProcessNoteJob(uuid.New(), models.BlockRef{Page: "pages/a.md", ID: "x"})
	next := job.Retry(time.Minute)

	if next == job {
		t.Fatal("Retry() returned the same job")
	}
	if job.RetryCount != 0 || job.NotBefore != nil {
		t.Error("Retry() modified the original job")
	}
	if next.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", next.RetryCount)
	}
	if next.ID != job.ID || next.RunID != job.RunID {
		t.Error("Retry() changed job identity")
	}
	if next.NotBefore == nil || time.Until(*next.NotBefore) <= 0 {
		t.Errorf("NotBefore = %v, want a future time", next.NotBefore)
	}
	if next.ShouldProcess() {
		t.Error("retried job should not be processed before its delay")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
