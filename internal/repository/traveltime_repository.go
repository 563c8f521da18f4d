package repository

import (
	"context"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/models"
)

// TravelTimeRepository handles the zone_travel_times table (spec §3, C2).
type TravelTimeRepository struct {
	db database.DB
}

func NewTravelTimeRepository(db database.DB) *TravelTimeRepository {
	return &TravelTimeRepository{db: db}
}

// LoadMatrix returns the full zone x zone minutes table for the
// organization. C2 keeps this in memory for the lifetime of one call and
// falls back to defaults for any pair not present.
func (r *TravelTimeRepository) LoadMatrix(ctx context.Context, orgID string) ([]models.ZoneTravelTime, error) {
	query := `
		SELECT organization_id, from_zone_id, to_zone_id, minutes
		FROM zone_travel_times
		WHERE organization_id = $1
	`
	var rows []models.ZoneTravelTime
	if err := r.db.SelectContext(ctx, &rows, query, orgID); err != nil {
		return nil, fmt.Errorf("load travel time matrix: %w", err)
	}
	return rows, nil
}
