package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
)

// warningRow mirrors models.Warning for scanning; Resolutions is persisted
// as a JSON column since it has no relational shape of its own (it is
// advisory output from the optimizer, not a normalized child table).
type warningRow struct {
	models.Warning
	ResolutionsRaw []byte `db:"resolutions"`
}

func (row warningRow) toWarning() (models.Warning, error) {
	w := row.Warning
	if len(row.ResolutionsRaw) > 0 {
		if err := json.Unmarshal(row.ResolutionsRaw, &w.Resolutions); err != nil {
			return w, fmt.Errorf("unmarshal warning resolutions: %w", err)
		}
	}
	return w, nil
}

// WarningRepository handles the warnings table (spec §3, C10).
//
// Required index: (organization_id, date, resolved) — both C10's
// reconcile sweep and the dispatch-status read path scan unresolved rows
// for a single day.
type WarningRepository struct {
	db database.DB
}

func NewWarningRepository(db database.DB) *WarningRepository {
	return &WarningRepository{db: db}
}

// ListForDate returns every warning recorded for the day, resolved or not,
// so callers can decide what to surface versus reconcile.
func (r *WarningRepository) ListForDate(ctx context.Context, orgID, date string) ([]models.Warning, error) {
	query := `
		SELECT id, organization_id, date, type, tour_run_key, booking_id, message, resolutions, resolved, resolved_at
		FROM warnings
		WHERE organization_id = $1 AND date = $2
		ORDER BY tour_run_key ASC NULLS LAST, booking_id ASC NULLS LAST
	`
	var rows []warningRow
	if err := r.db.SelectContext(ctx, &rows, query, orgID, date); err != nil {
		return nil, fmt.Errorf("list warnings for %s: %w", date, err)
	}
	warnings := make([]models.Warning, 0, len(rows))
	for _, row := range rows {
		w, err := row.toWarning()
		if err != nil {
			return nil, fmt.Errorf("list warnings for %s: %w", date, err)
		}
		warnings = append(warnings, w)
	}
	return warnings, nil
}

// ListUnresolvedForDate is the narrower read C10's sweep uses.
func (r *WarningRepository) ListUnresolvedForDate(ctx context.Context, orgID, date string) ([]models.Warning, error) {
	query := `
		SELECT id, organization_id, date, type, tour_run_key, booking_id, message, resolutions, resolved, resolved_at
		FROM warnings
		WHERE organization_id = $1 AND date = $2 AND resolved = false
	`
	var rows []warningRow
	if err := r.db.SelectContext(ctx, &rows, query, orgID, date); err != nil {
		return nil, fmt.Errorf("list unresolved warnings for %s: %w", date, err)
	}
	warnings := make([]models.Warning, 0, len(rows))
	for _, row := range rows {
		w, err := row.toWarning()
		if err != nil {
			return nil, fmt.Errorf("list unresolved warnings for %s: %w", date, err)
		}
		warnings = append(warnings, w)
	}
	return warnings, nil
}

// Upsert inserts a freshly-detected warning or refreshes the message on an
// existing one, keyed by (organization_id, date, type, tour_run_key,
// booking_id). Never touches a row that is already resolved — a new
// optimizer pass that re-detects the same problem should not revive a
// warning an operator explicitly cleared this run.
func (r *WarningRepository) Upsert(ctx context.Context, w models.Warning) error {
	resolutionsJSON, err := json.Marshal(w.Resolutions)
	if err != nil {
		return fmt.Errorf("upsert warning for %s: marshal resolutions: %w", w.Date, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO warnings (id, organization_id, date, type, tour_run_key, booking_id, message, resolutions, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		ON CONFLICT (organization_id, date, type, tour_run_key, booking_id) DO UPDATE SET
			message = EXCLUDED.message,
			resolutions = EXCLUDED.resolutions
		WHERE warnings.resolved = false
	`, w.ID, w.OrganizationID, w.Date, w.Type, w.TourRunKey, w.BookingID, w.Message, resolutionsJSON)
	if err != nil {
		return fmt.Errorf("upsert warning for %s: %w", w.Date, err)
	}
	return nil
}

// Resolve marks a warning resolved, recording which Resolution closed it
// as a JSON blob (spec §4.8, §4.9 log entry).
func (r *WarningRepository) Resolve(ctx context.Context, id string, resolutionJSON []byte) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE warnings SET resolved = true, resolved_at = NOW(), resolution = $1
		WHERE id = $2
	`, resolutionJSON, id)
	if err != nil {
		return fmt.Errorf("resolve warning %s: %w", id, err)
	}
	return nil
}

// AutoResolve is used by C10's sweep: marks the warning resolved with no
// operator-authored Resolution attached.
func (r *WarningRepository) AutoResolve(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE warnings SET resolved = true, resolved_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("auto-resolve warning %s: %w", id, err)
	}
	return nil
}

// GetByID fetches a single warning for resolution validation (spec §4.8
// step 1: the resolver must confirm the warning is unresolved and
// belongs to the caller's organization before acting).
func (r *WarningRepository) GetByID(ctx context.Context, orgID, id string) (*models.Warning, error) {
	var row warningRow
	query := `
		SELECT id, organization_id, date, type, tour_run_key, booking_id, message, resolutions, resolved, resolved_at
		FROM warnings
		WHERE organization_id = $1 AND id = $2
	`
	err := r.db.GetContext(ctx, &row, query, orgID, id)
	if err == sql.ErrNoRows {
		return nil, direrr.NotFound("warning not found").WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("get warning %s: %w", id, err)
	}
	w, err := row.toWarning()
	if err != nil {
		return nil, fmt.Errorf("get warning %s: %w", id, err)
	}
	return &w, nil
}
