package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/models"
)

// DispatchRepository handles the dispatch_status table.
//
// Required index/constraint: unique (organization_id, dispatch_date) —
// the table's whole synchronization story leans on this (spec §5).
type DispatchRepository struct {
	db database.DB
}

func NewDispatchRepository(db database.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

// GetOrCreate fetches the dispatch-status row for (org, date), inserting
// a fresh pending row if none exists yet (spec §4.4: "created on first
// read").
func (r *DispatchRepository) GetOrCreate(ctx context.Context, orgID, date string) (*models.DispatchStatus, error) {
	var ds models.DispatchStatus
	query := `
		SELECT id, organization_id, date, status, optimized_at, dispatched_at, dispatched_by,
		       total_guests, total_guides, total_drive_minutes, efficiency_score, unresolved_warnings
		FROM dispatch_status
		WHERE organization_id = $1 AND date = $2
	`
	err := r.db.GetContext(ctx, &ds, query, orgID, date)
	if err == nil {
		return &ds, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get dispatch status for %s: %w", date, err)
	}

	insert := `
		INSERT INTO dispatch_status (
			id, organization_id, date, status, total_guests, total_guides,
			total_drive_minutes, efficiency_score, unresolved_warnings
		) VALUES (gen_random_uuid(), $1, $2, 'pending', 0, 0, 0, 100, 0)
		ON CONFLICT (organization_id, date) DO NOTHING
		RETURNING id, organization_id, date, status, optimized_at, dispatched_at, dispatched_by,
		          total_guests, total_guides, total_drive_minutes, efficiency_score, unresolved_warnings
	`
	err = r.db.GetContext(ctx, &ds, insert, orgID, date)
	if err == nil {
		return &ds, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("create dispatch status for %s: %w", date, err)
	}
	// Lost the insert race to a concurrent caller (spec §5: two
	// concurrent optimizers may race) — re-read.
	if err := r.db.GetContext(ctx, &ds, query, orgID, date); err != nil {
		return nil, fmt.Errorf("re-read dispatch status for %s: %w", date, err)
	}
	return &ds, nil
}

// Update persists the reconciled status/counters (spec §4.4, §4.10). It
// writes ds.Status as given and does not itself guard the dispatched
// state; DispatchStoreService.Refresh returns before calling it when the
// day is already dispatched.
func (r *DispatchRepository) Update(ctx context.Context, ds models.DispatchStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_status
		SET status = $1, optimized_at = $2, total_guests = $3, total_guides = $4,
		    total_drive_minutes = $5, efficiency_score = $6, unresolved_warnings = $7
		WHERE organization_id = $8 AND date = $9
	`, ds.Status, ds.OptimizedAt, ds.TotalGuests, ds.TotalGuides,
		ds.TotalDriveMinutes, ds.EfficiencyScore, ds.UnresolvedWarnings,
		ds.OrganizationID, ds.Date)
	if err != nil {
		return fmt.Errorf("update dispatch status for %s: %w", ds.Date, err)
	}
	return nil
}

// OpenDay identifies one (organization, date) pair that has not yet been
// dispatched, the unit the reconciler sweep iterates over.
type OpenDay struct {
	OrganizationID string `db:"organization_id"`
	Date           string `db:"date"`
}

// ListOpenDays returns every dispatch day not yet in the dispatched state,
// across every tenant, for the periodic reconciler sweep (spec §4.10) to
// iterate over.
func (r *DispatchRepository) ListOpenDays(ctx context.Context) ([]OpenDay, error) {
	query := `
		SELECT organization_id, date
		FROM dispatch_status
		WHERE status != 'dispatched'
		ORDER BY date ASC
	`
	var days []OpenDay
	if err := r.db.SelectContext(ctx, &days, query); err != nil {
		return nil, fmt.Errorf("list open dispatch days: %w", err)
	}
	return days, nil
}

// MarkDispatched freezes the day (spec §3 lifecycle: ready -> dispatched).
func (r *DispatchRepository) MarkDispatched(ctx context.Context, orgID, date, dispatchedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_status
		SET status = 'dispatched', dispatched_at = NOW(), dispatched_by = $1
		WHERE organization_id = $2 AND date = $3
	`, dispatchedBy, orgID, date)
	if err != nil {
		return fmt.Errorf("mark dispatched for %s: %w", date, err)
	}
	return nil
}
