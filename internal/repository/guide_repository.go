package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
)

// GuideRepository handles guides table operations.
//
// Required index: (organization_id, status) to scan active guides quickly.
type GuideRepository struct {
	db database.DB
}

func NewGuideRepository(db database.DB) *GuideRepository {
	return &GuideRepository{db: db}
}

// ListActive returns every active guide for the organization — the
// candidate pool C3/C7 narrow down from.
func (r *GuideRepository) ListActive(ctx context.Context, orgID string) ([]models.Guide, error) {
	query := `
		SELECT id, organization_id, first_name, last_name, status,
		       vehicle_capacity, languages, base_zone_id, phone
		FROM guides
		WHERE organization_id = $1 AND status = 'active'
		ORDER BY id ASC
	`
	var guides []models.Guide
	if err := r.db.SelectContext(ctx, &guides, query, orgID); err != nil {
		return nil, fmt.Errorf("list active guides: %w", err)
	}
	return guides, nil
}

// GetByID returns a single guide scoped to the organization.
func (r *GuideRepository) GetByID(ctx context.Context, orgID, id string) (*models.Guide, error) {
	var g models.Guide
	query := `
		SELECT id, organization_id, first_name, last_name, status,
		       vehicle_capacity, languages, base_zone_id, phone
		FROM guides
		WHERE id = $1 AND organization_id = $2
	`
	err := r.db.GetContext(ctx, &g, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, direrr.NotFound("guide not found").WithGuide(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get guide %s: %w", id, err)
	}
	return &g, nil
}

// CreateOutsourced materializes a temporary guide row for an outsourced
// name so downstream reporting can reference a stable ID (used by
// createTempGuideForDate, spec §6).
func (r *GuideRepository) CreateOutsourced(ctx context.Context, orgID, id, name, phone string, vehicleCapacity int) error {
	query := `
		INSERT INTO guides (id, organization_id, first_name, last_name, status, vehicle_capacity, languages, phone)
		VALUES ($1, $2, $3, '', 'active', $4, '', NULLIF($5, ''))
	`
	if _, err := r.db.ExecContext(ctx, query, id, orgID, name, vehicleCapacity, phone); err != nil {
		return fmt.Errorf("create outsourced guide: %w", err)
	}
	return nil
}
