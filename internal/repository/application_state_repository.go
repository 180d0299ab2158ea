package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

// ApplicationStateRepository reads the workflow state catalog.
type ApplicationStateRepository struct {
	db *sqlx.DB
}

// NewApplicationStateRepository constructs the repository.
func NewApplicationStateRepository(db *sqlx.DB) *ApplicationStateRepository {
	return &ApplicationStateRepository{db: db}
}

// ListActive returns active catalog entries ordered by sequence number.
func (r *ApplicationStateRepository) ListActive(ctx context.Context) ([]models.ApplicationStateDefinition, error) {
	const query = `SELECT id, name, seq_no, is_active FROM application_state_definitions
	WHERE is_active = TRUE ORDER BY seq_no`
	var defs []models.ApplicationStateDefinition
	if err := r.db.SelectContext(ctx, &defs, query); err != nil {
		return nil, fmt.Errorf("list application states: %w", err)
	}
	return defs, nil
}
