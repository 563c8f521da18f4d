package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/models"
)

// PickupRepository handles pickup_assignments table operations.
//
// Required index: (schedule_id, guide_assignment_id) to scope a
// reconcile pass to one (tourRunKey, guide) group; a unique constraint on
// (schedule_id, guide_assignment_id, pickup_order) backs invariant 5.
type PickupRepository struct {
	db database.DB
}

func NewPickupRepository(db database.DB) *PickupRepository {
	return &PickupRepository{db: db}
}

// ListForDate returns every pickup-assignment row whose schedule_id
// (tourRunKey) falls on the given date, for C5's reconcile pass and C9's
// per-run pickup ordering.
func (r *PickupRepository) ListForDate(ctx context.Context, orgID, date string) ([]models.PickupAssignment, error) {
	query := `
		SELECT id, organization_id, booking_id, guide_assignment_id, schedule_id,
		       pickup_order, estimated_pickup_time, passenger_count, status
		FROM pickup_assignments
		WHERE organization_id = $1 AND schedule_id LIKE '%|' || $2 || '|%'
	`
	var rows []models.PickupAssignment
	if err := r.db.SelectContext(ctx, &rows, query, orgID, date); err != nil {
		return nil, fmt.Errorf("list pickup assignments for %s: %w", date, err)
	}
	return rows, nil
}

// Upsert inserts or updates a pickup-assignment row keyed by
// (booking_id, schedule_id) within the reconcile transaction.
func (r *PickupRepository) Upsert(ctx context.Context, tx *sqlx.Tx, p models.PickupAssignment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pickup_assignments (
			id, organization_id, booking_id, guide_assignment_id, schedule_id,
			pickup_order, estimated_pickup_time, passenger_count, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (booking_id, schedule_id) DO UPDATE SET
			guide_assignment_id = EXCLUDED.guide_assignment_id,
			pickup_order = EXCLUDED.pickup_order,
			estimated_pickup_time = EXCLUDED.estimated_pickup_time,
			passenger_count = EXCLUDED.passenger_count
	`, p.ID, p.OrganizationID, p.BookingID, p.GuideAssignmentID, p.ScheduleID,
		p.PickupOrder, p.EstimatedPickupTime, p.PassengerCount, p.Status)
	if err != nil {
		return fmt.Errorf("upsert pickup assignment for booking %s: %w", p.BookingID, err)
	}
	return nil
}

// DeleteByBookingAndSchedule removes a stale pickup row whose booking no
// longer belongs to the desired set (spec §4.6 step 6).
func (r *PickupRepository) DeleteByBookingAndSchedule(ctx context.Context, tx *sqlx.Tx, bookingID, scheduleID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM pickup_assignments WHERE booking_id = $1 AND schedule_id = $2
	`, bookingID, scheduleID)
	if err != nil {
		return fmt.Errorf("delete pickup assignment for booking %s: %w", bookingID, err)
	}
	return nil
}

// BeginTx starts the transaction C5 reconciles within.
func (r *PickupRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
