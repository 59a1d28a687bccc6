package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/voiceflow/internal/database"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/queue"
	"go.uber.org/zap"
)

const (
	// DefaultJobTimeout bounds one job when no timeout is configured.
	DefaultJobTimeout = 10 * time.Minute
	// DefaultRetryDelay is the wait before a transiently failed job runs again.
	DefaultRetryDelay = time.Minute
	// DefaultStoreRetryDelay is the pause before a job is handed back to the
	// broker because the run store could not be reached.
	DefaultStoreRetryDelay = 5 * time.Second
)

// JobRunner executes queued voice note jobs against one workspace.
type JobRunner struct {
	processor  *NoteProcessor
	workspace  Workspace
	runs       database.RunStore
	jobQueue   queue.JobQueue
	timeout    time.Duration
	retryDelay time.Duration
	storeDelay time.Duration
	logger     *zap.Logger
}

// NewJobRunner creates a new job runner. runs may be nil, in which case each
// job starts a fresh run record.
func NewJobRunner(processor *NoteProcessor, workspace Workspace, runs database.RunStore, jobQueue queue.JobQueue, timeout time.Duration, logger *zap.Logger) *JobRunner {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRunner{
		processor:  processor,
		workspace:  workspace,
		runs:       runs,
		jobQueue:   jobQueue,
		timeout:    timeout,
		retryDelay: DefaultRetryDelay,
		storeDelay: DefaultStoreRetryDelay,
		logger:     logger,
	}
}

// ProcessJob runs the job carried by msg and settles it. Jobs that failed
// transiently are re-published with a growing delay while retries remain;
// once they run out, or the re-publish fails, the job is dead-lettered.
// The returned error is for logging; the message is always settled.
func (r *JobRunner) ProcessJob(ctx context.Context, msg queue.Delivery) error {
	job := msg.GetJob()
	if err := job.Validate(); err != nil {
		_ = msg.Nack(false)
		return err
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	run, err := r.loadRun(jobCtx, job)
	if err != nil {
		r.logger.Warn("run_store_unavailable_requeueing",
			zap.String("job_id", job.ID.String()),
			zap.Duration("delay", r.storeDelay),
			zap.Error(err),
		)
		pause(ctx, r.storeDelay)
		_ = msg.Nack(true)
		return err
	}

	r.logger.Info("job_started",
		zap.String("job_id", job.ID.String()),
		zap.String("run_id", run.ID.String()),
		zap.Int("retry_count", job.RetryCount),
	)

	_, runErr := r.processor.Execute(jobCtx, r.workspace, run)

	var perr *PipelineError
	if !errors.As(runErr, &perr) || !perr.Kind.Retryable() {
		if err := msg.Ack(); err != nil {
			return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
		}
		return runErr
	}

	if !job.CanRetry() {
		r.logger.Warn("job_retries_exhausted",
			zap.String("job_id", job.ID.String()),
			zap.String("run_id", run.ID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.String("kind", string(perr.Kind)),
		)
		return r.deadLetter(msg, job, runErr)
	}

	next := job.Retry(r.retryDelay * time.Duration(job.RetryCount+1))
	if err := r.jobQueue.Enqueue(context.WithoutCancel(ctx), next); err != nil {
		r.logger.Error("job_retry_enqueue_failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return r.deadLetter(msg, job, errors.Join(runErr, err))
	}
	r.logger.Info("job_retry_scheduled",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", next.RetryCount),
		zap.Timep("not_before", next.NotBefore),
	)
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return runErr
}

func (r *JobRunner) deadLetter(msg queue.Delivery, job *queue.Job, cause error) error {
	if err := msg.Nack(false); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, errors.Join(cause, err))
	}
	return cause
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *JobRunner) loadRun(ctx context.Context, job *queue.Job) (*models.Run, error) {
	if r.runs == nil {
		run := models.NewRun(job.Block)
		run.ID = job.RunID
		return run, nil
	}
	run, err := r.runs.GetByID(ctx, job.RunID)
	if errors.Is(err, database.ErrRunNotFound) {
		run = models.NewRun(job.Block)
		run.ID = job.RunID
		if err := r.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		return run, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes.
func (r *JobRunner) Run(ctx context.Context, prefetch int) error {
	msgs, errs, err := r.jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			if err := r.ProcessJob(ctx, msg); err != nil {
				r.logger.Error("job_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}
