package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
)

// BookingRepository handles bookings table operations.
//
// Required index: (organization_id, booking_date); composite
// (organization_id, tour_id, booking_date, booking_time) for the
// tour-run aggregator's grouped scan.
type BookingRepository struct {
	db database.DB
}

func NewBookingRepository(db database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ListDispatchEligibleForDate fetches every pending/confirmed booking for
// a date, for the tour-run aggregator (C4 step 1).
func (r *BookingRepository) ListDispatchEligibleForDate(ctx context.Context, orgID, date string) ([]models.Booking, error) {
	query := `
		SELECT id, organization_id, tour_id, booking_date, booking_time, total_participants,
		       status, pickup_zone_id, pickup_location, pickup_time, experience_mode,
		       customer_id, created_at, updated_at
		FROM bookings
		WHERE organization_id = $1
		  AND booking_date = $2
		  AND status IN ('pending', 'confirmed')
		ORDER BY booking_time ASC, created_at ASC
	`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, orgID, date); err != nil {
		return nil, fmt.Errorf("list bookings for %s: %w", date, err)
	}
	return bookings, nil
}

// GetByID returns a single booking scoped to the organization.
func (r *BookingRepository) GetByID(ctx context.Context, orgID, id string) (*models.Booking, error) {
	var b models.Booking
	query := `
		SELECT id, organization_id, tour_id, booking_date, booking_time, total_participants,
		       status, pickup_zone_id, pickup_location, pickup_time, experience_mode,
		       customer_id, created_at, updated_at
		FROM bookings
		WHERE id = $1 AND organization_id = $2
	`
	err := r.db.GetContext(ctx, &b, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, direrr.NotFound("booking not found").WithBooking(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	return &b, nil
}

// GetByIDs batches booking lookups, used by the batch engine to load
// every affected booking in one round trip.
func (r *BookingRepository) GetByIDs(ctx context.Context, orgID string, ids []string) (map[string]models.Booking, error) {
	result := make(map[string]models.Booking, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := inClauseQuery(`
		SELECT id, organization_id, tour_id, booking_date, booking_time, total_participants,
		       status, pickup_zone_id, pickup_location, pickup_time, experience_mode,
		       customer_id, created_at, updated_at
		FROM bookings
		WHERE organization_id = ? AND id IN (?)
	`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("build bookings query: %w", err)
	}
	query = rebind(r.db, query)

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("get bookings by ids: %w", err)
	}
	for _, b := range bookings {
		result[b.ID] = b
	}
	return result, nil
}

// UpdateSchedule updates a booking's time fields after a time-shift
// mutation, inside the batch engine's apply transaction when tx is
// non-nil (spec §4.7 step 7).
func (r *BookingRepository) UpdateSchedule(ctx context.Context, tx *sqlx.Tx, orgID, id, bookingTime string, pickupTime *string) error {
	query := `
		UPDATE bookings
		SET booking_time = $1, pickup_time = $2, updated_at = NOW()
		WHERE id = $3 AND organization_id = $4
	`
	res, err := r.execer(tx).ExecContext(ctx, query, bookingTime, pickupTime, id, orgID)
	if err != nil {
		return fmt.Errorf("update booking schedule %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking schedule %s: %w", id, err)
	}
	if rows == 0 {
		return direrr.NotFound("booking not found").WithBooking(id)
	}
	return nil
}

// UpdateStatus sets status on a set of bookings (used by cancel_tour),
// inside the batch engine's apply transaction when tx is non-nil.
func (r *BookingRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, orgID string, ids []string, status models.BookingStatus) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := inClauseQuery(`
		UPDATE bookings SET status = ?, updated_at = NOW()
		WHERE organization_id = ? AND id IN (?)
	`, status, orgID, ids)
	if err != nil {
		return fmt.Errorf("build booking status update: %w", err)
	}
	query = rebind(r.db, query)
	if _, err := r.execer(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

func (r *BookingRepository) execer(tx *sqlx.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.db
}

// CountCompletedByCustomers returns, for each customer ID in the set, how
// many completed bookings they have under this tenant — used to compute
// the first-time-customer flag in one grouped query (spec §4.3 step 6).
func (r *BookingRepository) CountCompletedByCustomers(ctx context.Context, orgID string, customerIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(customerIDs))
	if len(customerIDs) == 0 {
		return result, nil
	}
	query, args, err := inClauseQuery(`
		SELECT customer_id, COUNT(*) AS completed_count
		FROM bookings
		WHERE organization_id = ? AND customer_id IN (?) AND status = 'completed'
		GROUP BY customer_id
	`, orgID, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("build completed-count query: %w", err)
	}
	query = rebind(r.db, query)

	type row struct {
		CustomerID     string `db:"customer_id"`
		CompletedCount int    `db:"completed_count"`
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count completed bookings: %w", err)
	}
	for _, rr := range rows {
		result[rr.CustomerID] = rr.CompletedCount
	}
	return result, nil
}
