package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// WarningReconcilerService auto-resolves stale warnings whenever a
// dispatch status is refreshed (spec §4.10, C10). capacity_exceeded and
// conflict are never auto-resolved; they require explicit user action.
type WarningReconcilerService struct {
	warnings    *repository.WarningRepository
	assignments *repository.AssignmentRepository
	logger      *logrus.Logger
}

func NewWarningReconcilerService(
	warnings *repository.WarningRepository,
	assignments *repository.AssignmentRepository,
	logger *logrus.Logger,
) *WarningReconcilerService {
	return &WarningReconcilerService{warnings: warnings, assignments: assignments, logger: logger}
}

// Reconcile auto-resolves every unresolved warning for date whose
// underlying condition has since cleared, given the freshly-built runs
// for the day (keyed by tourRunKey).
func (s *WarningReconcilerService) Reconcile(ctx context.Context, orgID, date string, runsByKey map[string]models.TourRun) (int, error) {
	unresolved, err := s.warnings.ListUnresolvedForDate(ctx, orgID, date)
	if err != nil {
		return 0, fmt.Errorf("reconcile warnings: %w", err)
	}

	resolvedCount := 0
	for _, w := range unresolved {
		if !w.Type.AutoResolvable() {
			continue
		}

		switch {
		case w.BookingID != nil && *w.BookingID != "":
			confirmed, err := s.assignments.GetConfirmedByBookingIDs(ctx, orgID, []string{*w.BookingID})
			if err != nil {
				return resolvedCount, fmt.Errorf("reconcile warnings: %w", err)
			}
			if _, ok := confirmed[*w.BookingID]; ok {
				if err := s.warnings.AutoResolve(ctx, w.ID); err != nil {
					return resolvedCount, fmt.Errorf("reconcile warnings: %w", err)
				}
				resolvedCount++
			}

		case w.TourRunKey != nil && *w.TourRunKey != "":
			if run, ok := runsByKey[*w.TourRunKey]; ok && run.Status == models.TourRunAssigned {
				if err := s.warnings.AutoResolve(ctx, w.ID); err != nil {
					return resolvedCount, fmt.Errorf("reconcile warnings: %w", err)
				}
				resolvedCount++
			}
		}
	}

	if resolvedCount > 0 {
		s.logger.WithFields(logrus.Fields{
			"organization_id": orgID,
			"date":            date,
			"resolved_count":  resolvedCount,
		}).Info("warning reconciler auto-resolved stale warnings")
	}

	return resolvedCount, nil
}
