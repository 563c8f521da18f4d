package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
)

// TourRepository handles tours table operations.
//
// Required index: none beyond the primary key — tours are looked up by ID
// or fetched in bulk by organization.
type TourRepository struct {
	db database.DB
}

func NewTourRepository(db database.DB) *TourRepository {
	return &TourRepository{db: db}
}

// GetByID returns a single tour scoped to the organization.
func (r *TourRepository) GetByID(ctx context.Context, orgID, id string) (*models.Tour, error) {
	var tour models.Tour
	query := `
		SELECT id, organization_id, name, duration_minutes, guests_per_guide, created_at, updated_at
		FROM tours
		WHERE id = $1 AND organization_id = $2
	`
	err := r.db.GetContext(ctx, &tour, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, direrr.NotFound("tour not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get tour %s: %w", id, err)
	}
	return &tour, nil
}

// GetByIDs batches tour lookups for a set of IDs (used by the tour-run
// aggregator to join bookings to their tours in one query).
func (r *TourRepository) GetByIDs(ctx context.Context, orgID string, ids []string) (map[string]models.Tour, error) {
	result := make(map[string]models.Tour, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := inClauseQuery(`
		SELECT id, organization_id, name, duration_minutes, guests_per_guide, created_at, updated_at
		FROM tours
		WHERE organization_id = ? AND id IN (?)
	`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("build tours query: %w", err)
	}
	query = rebind(r.db, query)

	var tours []models.Tour
	if err := r.db.SelectContext(ctx, &tours, query, args...); err != nil {
		return nil, fmt.Errorf("get tours by ids: %w", err)
	}
	for _, t := range tours {
		result[t.ID] = t
	}
	return result, nil
}
