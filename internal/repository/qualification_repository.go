package repository

import (
	"context"
	"fmt"

	"github.com/tourops/dispatch-core/internal/database"
)

// QualificationRepository handles the tour_guide_qualifications
// many-to-many table.
type QualificationRepository struct {
	db database.DB
}

func NewQualificationRepository(db database.DB) *QualificationRepository {
	return &QualificationRepository{db: db}
}

// QualifiedGuideIDsForTours returns, for each tour ID given, the set of
// guide IDs qualified for it, in one query (spec §3, §4.5 step 3a).
func (r *QualificationRepository) QualifiedGuideIDsForTours(ctx context.Context, tourIDs []string) (map[string]map[string]bool, error) {
	result := make(map[string]map[string]bool, len(tourIDs))
	if len(tourIDs) == 0 {
		return result, nil
	}
	query, args, err := inClauseQuery(`
		SELECT tour_id, guide_id
		FROM tour_guide_qualifications
		WHERE tour_id IN (?)
	`, tourIDs)
	if err != nil {
		return nil, fmt.Errorf("build qualifications query: %w", err)
	}
	query = rebind(r.db, query)

	type row struct {
		TourID  string `db:"tour_id"`
		GuideID string `db:"guide_id"`
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get qualifications: %w", err)
	}
	for _, rr := range rows {
		if result[rr.TourID] == nil {
			result[rr.TourID] = make(map[string]bool)
		}
		result[rr.TourID][rr.GuideID] = true
	}
	return result, nil
}
