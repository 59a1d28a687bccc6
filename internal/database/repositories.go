package database

import (
	"context"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/google/uuid"
)

// RunStore defines the run repository operations used by the pipeline and
// the HTTP handlers. Mock implementations live next to their tests.
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Update(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Run, error)
}

// MappingStore defines the project mapping repository operations
type MappingStore interface {
	List(ctx context.Context) ([]models.ProjectMapping, error)
	Upsert(ctx context.Context, m models.ProjectMapping) error
	Delete(ctx context.Context, tag string) error
}

// SettingStore defines the API settings repository operations
type SettingStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Ensure concrete types implement the interfaces
var (
	_ RunStore     = (*RunRepository)(nil)
	_ MappingStore = (*ProjectMappingRepository)(nil)
	_ SettingStore = (*APISettingsRepository)(nil)
)
