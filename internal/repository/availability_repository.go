package repository

import (
	"context"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/models"
)

// UpsertOverride inserts or replaces the single per-(guide,date) override
// row, used by createTempGuideForDate (spec §6) to make a freshly
// created temp guide available on the date it was created for.
func (r *AvailabilityRepository) UpsertOverride(ctx context.Context, o models.AvailabilityOverride) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO availability_overrides (id, guide_id, date, is_available, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (guide_id, date) DO UPDATE SET
			is_available = EXCLUDED.is_available,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time
	`, o.ID, o.GuideID, o.Date, o.IsAvailable, o.StartTime, o.EndTime)
	if err != nil {
		return fmt.Errorf("upsert availability override for guide %s on %s: %w", o.GuideID, o.Date, err)
	}
	return nil
}

// AvailabilityRepository handles weekly_availability and
// availability_overrides table operations.
//
// Required index: (guide_id, date) unique on availability overrides.
type AvailabilityRepository struct {
	db database.DB
}

func NewAvailabilityRepository(db database.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetOverridesForGuides returns every override row for the given guides
// on the given date — the first of C3's two batched queries (spec §4.2).
func (r *AvailabilityRepository) GetOverridesForGuides(ctx context.Context, guideIDs []string, date string) ([]models.AvailabilityOverride, error) {
	if len(guideIDs) == 0 {
		return nil, nil
	}
	query, args, err := inClauseQuery(`
		SELECT id, guide_id, date, is_available, start_time, end_time
		FROM availability_overrides
		WHERE date = ? AND guide_id IN (?)
	`, date, guideIDs)
	if err != nil {
		return nil, fmt.Errorf("build overrides query: %w", err)
	}
	query = rebind(r.db, query)

	var overrides []models.AvailabilityOverride
	if err := r.db.SelectContext(ctx, &overrides, query, args...); err != nil {
		return nil, fmt.Errorf("get availability overrides: %w", err)
	}
	return overrides, nil
}

// GetWeeklyForGuides returns every weekly-pattern row for the given
// guides on the given day-of-week — the second of C3's two batched
// queries (spec §4.2).
func (r *AvailabilityRepository) GetWeeklyForGuides(ctx context.Context, guideIDs []string, dayOfWeek int) ([]models.WeeklyAvailability, error) {
	if len(guideIDs) == 0 {
		return nil, nil
	}
	query, args, err := inClauseQuery(`
		SELECT id, guide_id, day_of_week, start_time, end_time, is_available
		FROM weekly_availability
		WHERE day_of_week = ? AND guide_id IN (?)
		ORDER BY guide_id, start_time ASC
	`, dayOfWeek, guideIDs)
	if err != nil {
		return nil, fmt.Errorf("build weekly availability query: %w", err)
	}
	query = rebind(r.db, query)

	var rows []models.WeeklyAvailability
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get weekly availability: %w", err)
	}
	return rows, nil
}
