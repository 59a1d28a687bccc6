package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/models"
)

// ErrMappingNotFound is returned when deleting a tag that has no mapping.
var ErrMappingNotFound = errors.New("project mapping not found")

// ProjectMappingRepository stores the hashtag to project routing table.
// Rows keep their insertion position so the first matching tag still wins
// after a round trip through the database.
type ProjectMappingRepository struct {
	db *DB
}

// NewProjectMappingRepository creates a new project mapping repository
func NewProjectMappingRepository(db *DB) *ProjectMappingRepository {
	return &ProjectMappingRepository{db: db}
}

// List returns all mappings in insertion order
func (r *ProjectMappingRepository) List(ctx context.Context) ([]models.ProjectMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag, project_id, project_name
		FROM project_mappings
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list project mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ProjectMapping
	for rows.Next() {
		var m models.ProjectMapping
		if err := rows.Scan(&m.Tag, &m.ProjectID, &m.ProjectName); err != nil {
			return nil, fmt.Errorf("scan project mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list project mappings: %w", err)
	}
	return out, nil
}

// Upsert adds a mapping or updates the project of an existing tag. An
// updated tag keeps its original position.
func (r *ProjectMappingRepository) Upsert(ctx context.Context, m models.ProjectMapping) error {
	tag := strings.TrimSpace(m.Tag)
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_mappings (tag, project_id, project_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tag) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			project_name = EXCLUDED.project_name,
			updated_at = EXCLUDED.updated_at
	`, tag, strings.TrimSpace(m.ProjectID), strings.TrimSpace(m.ProjectName), now, now)
	if err != nil {
		return fmt.Errorf("upsert project mapping: %w", err)
	}
	return nil
}

// Delete removes the mapping for tag
func (r *ProjectMappingRepository) Delete(ctx context.Context, tag string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_mappings WHERE tag = $1`, strings.TrimSpace(tag))
	if err != nil {
		return fmt.Errorf("delete project mapping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project mapping: %w", err)
	}
	if n == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// MergeMappings returns base followed by the stored mappings. A stored tag
// replaces the base entry with the same tag in place.
func MergeMappings(base, stored []models.ProjectMapping) []models.ProjectMapping {
	all := append(append([]models.ProjectMapping(nil), base...), stored...)
	out := make([]models.ProjectMapping, 0, len(all))
	index := make(map[string]int, len(all))
	for _, m := range all {
		key := strings.ToLower(m.Tag)
		if i, ok := index[key]; ok {
			out[i] = m
			continue
		}
		index[key] = len(out)
		out = append(out, m)
	}
	return out
}
