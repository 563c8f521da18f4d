package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/models"
)

// AssignmentRepository handles guide_assignments table operations.
//
// Required index: (organization_id, status) for scanning confirmed rows
// on a dispatch day; a unique constraint on (booking_id) WHERE status =
// 'confirmed' enforces invariant 3 even under concurrent optimizers
// (spec §5 shared-resource policy).
type AssignmentRepository struct {
	db database.DB
}

func NewAssignmentRepository(db database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListConfirmedForDate returns every confirmed assignment for the date,
// joined with its booking, for C5/C7/C9 to consume.
func (r *AssignmentRepository) ListConfirmedForDate(ctx context.Context, orgID, date string) ([]models.AssignmentWithBooking, error) {
	query := `
		SELECT ga.id AS assignment_id, ga.booking_id, ga.guide_id, ga.outsourced_guide_name,
		       ga.assigned_at, ga.pickup_order, ga.calculated_pickup_time, ga.drive_time_minutes,
		       b.tour_id, b.booking_date, b.booking_time, b.pickup_time, b.total_participants,
		       b.experience_mode, b.created_at
		FROM guide_assignments ga
		JOIN bookings b ON b.id = ga.booking_id
		WHERE ga.organization_id = $1 AND b.booking_date = $2 AND ga.status = 'confirmed'
		ORDER BY b.booking_time ASC, b.created_at ASC
	`
	var rows []models.AssignmentWithBooking
	if err := r.db.SelectContext(ctx, &rows, query, orgID, date); err != nil {
		return nil, fmt.Errorf("list confirmed assignments for %s: %w", date, err)
	}
	return rows, nil
}

// GetConfirmedByBookingIDs returns the current confirmed assignment for
// each booking ID that has one (used to seed the batch engine's
// simulation state, spec §4.7 step 4).
func (r *AssignmentRepository) GetConfirmedByBookingIDs(ctx context.Context, orgID string, bookingIDs []string) (map[string]models.GuideAssignment, error) {
	result := make(map[string]models.GuideAssignment, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return result, nil
	}
	query, args, err := inClauseQuery(`
		SELECT id, organization_id, booking_id, guide_id, outsourced_guide_name, outsourced_contact,
		       status, assigned_at, confirmed_at, pickup_order, calculated_pickup_time, drive_time_minutes
		FROM guide_assignments
		WHERE organization_id = ? AND booking_id IN (?) AND status = 'confirmed'
	`, orgID, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("build confirmed-assignments query: %w", err)
	}
	query = rebind(r.db, query)

	var rows []models.GuideAssignment
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get confirmed assignments: %w", err)
	}
	for _, a := range rows {
		result[a.BookingID] = a
	}
	return result, nil
}

// InsertConfirmed inserts a new confirmed assignment row, deleting any
// prior confirmed row for the booking first (spec §4.7 step 7: "delete
// any existing confirmed assignment for that booking, then insert").
// Idempotent under concurrent optimizers (spec §5).
func (r *AssignmentRepository) InsertConfirmed(ctx context.Context, tx *sqlx.Tx, a models.GuideAssignment) error {
	exec := r.execer(tx)

	if _, err := exec.ExecContext(ctx, `
		DELETE FROM guide_assignments WHERE organization_id = $1 AND booking_id = $2 AND status = 'confirmed'
	`, a.OrganizationID, a.BookingID); err != nil {
		return fmt.Errorf("delete existing confirmed assignment for %s: %w", a.BookingID, err)
	}

	_, err := exec.ExecContext(ctx, `
		INSERT INTO guide_assignments (
			id, organization_id, booking_id, guide_id, outsourced_guide_name, outsourced_contact,
			status, assigned_at, confirmed_at, pickup_order, calculated_pickup_time, drive_time_minutes
		) VALUES ($1, $2, $3, $4, $5, $6, 'confirmed', $7, $7, $8, $9, $10)
	`, a.ID, a.OrganizationID, a.BookingID, a.GuideID, a.OutsourcedGuideName, a.OutsourcedContact,
		a.AssignedAt, a.PickupOrder, a.CalculatedPickupTime, a.DriveTimeMinutes)
	if err != nil {
		return fmt.Errorf("insert confirmed assignment for %s: %w", a.BookingID, err)
	}
	return nil
}

// DeleteConfirmedForBookings deletes confirmed assignments for the given
// bookings (the "unassign" mutation, spec §4.7 step 7).
func (r *AssignmentRepository) DeleteConfirmedForBookings(ctx context.Context, tx *sqlx.Tx, orgID string, bookingIDs []string) error {
	if len(bookingIDs) == 0 {
		return nil
	}
	query, args, err := inClauseQuery(`
		DELETE FROM guide_assignments WHERE organization_id = ? AND booking_id IN (?) AND status = 'confirmed'
	`, orgID, bookingIDs)
	if err != nil {
		return fmt.Errorf("build unassign query: %w", err)
	}
	query = rebind(r.db, query)
	if _, err := r.execer(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete confirmed assignments: %w", err)
	}
	return nil
}

// UpdatePickupFields writes back C5's derived pickup order/time/drive
// minutes onto a guide assignment row (spec §4.6 step 6).
func (r *AssignmentRepository) UpdatePickupFields(ctx context.Context, tx *sqlx.Tx, id string, order int, pickupTime string, driveMinutes int) error {
	_, err := r.execer(tx).ExecContext(ctx, `
		UPDATE guide_assignments
		SET pickup_order = $1, calculated_pickup_time = $2, drive_time_minutes = $3
		WHERE id = $4
	`, order, pickupTime, driveMinutes, id)
	if err != nil {
		return fmt.Errorf("update pickup fields for assignment %s: %w", id, err)
	}
	return nil
}

// UpdateCalculatedPickupTime updates only the calculated pickup time,
// used when a time-shift mutation propagates onto an assignment without
// re-deriving full pickup order (spec §4.7 step 7).
func (r *AssignmentRepository) UpdateCalculatedPickupTime(ctx context.Context, tx *sqlx.Tx, bookingID, pickupTime string) error {
	_, err := r.execer(tx).ExecContext(ctx, `
		UPDATE guide_assignments SET calculated_pickup_time = $1
		WHERE booking_id = $2 AND status = 'confirmed'
	`, pickupTime, bookingID)
	if err != nil {
		return fmt.Errorf("update calculated pickup time for %s: %w", bookingID, err)
	}
	return nil
}

// BeginTx starts a transaction for the batch engine's single-commit apply
// phase (spec §4.7 step 7, §5).
func (r *AssignmentRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *AssignmentRepository) execer(tx *sqlx.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}
