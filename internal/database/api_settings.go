package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Keys of the runtime-tunable API settings.
const (
	SettingRateLimit      = "ratelimit.rate"
	SettingAllowedOrigins = "cors.allowed_origins"
)

// APISettingsRepository stores API settings that can change without a
// restart, such as the request rate and the CORS origin list.
type APISettingsRepository struct {
	db *DB
}

// NewAPISettingsRepository creates a new API settings repository.
func NewAPISettingsRepository(db *DB) *APISettingsRepository {
	return &APISettingsRepository{db: db}
}

// Get returns the value stored for key, or "" when the key is unset.
func (r *APISettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM api_settings WHERE setting_key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get api setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the value for key.
func (r *APISettingsRepository) Set(ctx context.Context, key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("api setting %s cannot be empty", key)
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_settings (setting_key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (setting_key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, value, now, now)
	if err != nil {
		return fmt.Errorf("set api setting %s: %w", key, err)
	}
	return nil
}

// SplitList splits a comma separated setting, dropping blanks and duplicates.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
