package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

const configurationColumns = `id, name, description, profile, updated_by, updated_at`

// ConfigurationRepository persists stored constraint configurations.
type ConfigurationRepository struct {
	db *sqlx.DB
}

// NewConfigurationRepository constructs the repository.
func NewConfigurationRepository(db *sqlx.DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// List returns every configuration ordered by name.
func (r *ConfigurationRepository) List(ctx context.Context) ([]models.ConstraintConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM constraint_configurations ORDER BY name ASC, id ASC`
	var configs []models.ConstraintConfiguration
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("list constraint configurations: %w", err)
	}
	return configs, nil
}

// Get fetches a single configuration. Missing rows return sql.ErrNoRows.
func (r *ConfigurationRepository) Get(ctx context.Context, id string) (*models.ConstraintConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM constraint_configurations WHERE id = $1`
	var cfg models.ConstraintConfiguration
	if err := r.db.GetContext(ctx, &cfg, query, id); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert inserts or replaces a configuration.
func (r *ConfigurationRepository) Upsert(ctx context.Context, cfg *models.ConstraintConfiguration) error {
	const query = `INSERT INTO constraint_configurations (id, name, description, profile, updated_by, updated_at)
VALUES (:id, :name, :description, :profile, :updated_by, :updated_at)
ON CONFLICT (id)
DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, profile = EXCLUDED.profile,
              updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	cfg.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert constraint configuration: %w", err)
	}
	return nil
}
