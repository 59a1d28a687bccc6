package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

const (
	// DefaultRunListLimit is used when ListRecent gets a non-positive limit.
	DefaultRunListLimit = 20
	// MaxRunListLimit caps ListRecent.
	MaxRunListLimit = 200
)

const runColumns = `id, block_page, block_id, block_line, state, error_kind, error_message,
		page_title, transcript, directives, created_task_ids, warnings,
		created_at, updated_at, completed_at`

// RunRepository handles processing run records
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	directivesJSON, err := marshalDirectives(run.Directives)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	err = r.db.QueryRowContext(ctx, query,
		run.ID,
		run.Block.Page,
		run.Block.ID,
		run.Block.Line,
		run.State,
		run.ErrorKind,
		run.ErrorMessage,
		run.PageTitle,
		run.Transcript,
		directivesJSON,
		pq.Array(nonNil(run.CreatedTaskIDs)),
		pq.Array(nonNil(run.Warnings)),
		run.CreatedAt,
		run.UpdatedAt,
		run.CompletedAt,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Update stores the current state of a run
func (r *RunRepository) Update(ctx context.Context, run *models.Run) error {
	directivesJSON, err := marshalDirectives(run.Directives)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs
		SET state = $2, error_kind = $3, error_message = $4, page_title = $5,
			transcript = $6, directives = $7, created_task_ids = $8, warnings = $9,
			updated_at = $10, completed_at = $11
		WHERE id = $1
	`
	run.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.State,
		run.ErrorKind,
		run.ErrorMessage,
		run.PageTitle,
		run.Transcript,
		directivesJSON,
		pq.Array(nonNil(run.CreatedTaskIDs)),
		pq.Array(nonNil(run.Warnings)),
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRecent returns the newest runs first
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	if limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var directivesJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Block.Page,
		&run.Block.ID,
		&run.Block.Line,
		&run.State,
		&run.ErrorKind,
		&run.ErrorMessage,
		&run.PageTitle,
		&run.Transcript,
		&directivesJSON,
		pq.Array(&run.CreatedTaskIDs),
		pq.Array(&run.Warnings),
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(directivesJSON) > 0 {
		run.Directives = &models.Directives{}
		if err := json.Unmarshal(directivesJSON, run.Directives); err != nil {
			return nil, fmt.Errorf("failed to unmarshal directives: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

func marshalDirectives(d *models.Directives) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal directives: %w", err)
	}
	return b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
