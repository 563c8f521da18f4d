package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// DispatchStoreService persists and reconciles the per-day dispatch
// record (spec §4.4, C6). `dispatched` is an absorbing state: once set,
// AssertNotDispatched rejects every further mutation entry point.
type DispatchStoreService struct {
	dispatchRepo *repository.DispatchRepository
	warningRepo  *repository.WarningRepository
	tourRuns     *TourRunService
	reconciler   *WarningReconcilerService
	logger       *logrus.Logger
}

func NewDispatchStoreService(
	dispatchRepo *repository.DispatchRepository,
	warningRepo *repository.WarningRepository,
	tourRuns *TourRunService,
	reconciler *WarningReconcilerService,
	logger *logrus.Logger,
) *DispatchStoreService {
	return &DispatchStoreService{
		dispatchRepo: dispatchRepo,
		warningRepo:  warningRepo,
		tourRuns:     tourRuns,
		reconciler:   reconciler,
		logger:       logger,
	}
}

// Refresh upserts the dispatch row for (org, date) if absent, reconciles
// stale warnings against the current runs, then recomputes and persists
// status/counters — unless the day is already dispatched, which is
// preserved untouched (spec §4.4, §4.10).
func (s *DispatchStoreService) Refresh(ctx context.Context, orgID, date string) (*models.DispatchStatus, error) {
	ds, err := s.dispatchRepo.GetOrCreate(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("refresh dispatch status: %w", err)
	}
	if ds.IsDispatched() {
		ds.Warnings, err = s.loadWarnings(ctx, orgID, date)
		if err != nil {
			return nil, err
		}
		return ds, nil
	}

	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("refresh dispatch status: %w", err)
	}
	runsByKey := make(map[string]models.TourRun, len(runs))
	for _, r := range runs {
		runsByKey[r.Key] = r
	}

	if _, err := s.reconciler.Reconcile(ctx, orgID, date, runsByKey); err != nil {
		return nil, fmt.Errorf("refresh dispatch status: %w", err)
	}

	warnings, err := s.loadWarnings(ctx, orgID, date)
	if err != nil {
		return nil, err
	}

	unresolvedCount := 0
	for _, w := range warnings {
		if !w.Resolved {
			unresolvedCount++
		}
	}

	totalGuests, totalGuides, guidesNeeded, guidesAssigned := 0, 0, 0, 0
	for _, r := range runs {
		totalGuests += r.TotalGuests
		guidesNeeded += r.GuidesNeeded
		guidesAssigned += r.GuidesAssigned
		totalGuides += r.GuidesAssigned
	}

	ds.Status = s.deriveStatus(len(runs), unresolvedCount)
	ds.TotalGuests = totalGuests
	ds.TotalGuides = totalGuides
	ds.EfficiencyScore = efficiencyScore(guidesAssigned, guidesNeeded)
	ds.UnresolvedWarnings = unresolvedCount
	ds.Warnings = warnings

	// Stamp the first transition out of pending so optimized_at reflects
	// when the day was first staffed, not every subsequent refresh.
	if ds.Status != models.DispatchPending && ds.OptimizedAt == nil {
		now := txNow()
		ds.OptimizedAt = &now
	}

	if err := s.dispatchRepo.Update(ctx, *ds); err != nil {
		return nil, fmt.Errorf("refresh dispatch status: %w", err)
	}

	return ds, nil
}

// deriveStatus implements spec §4.4: tourRuns == 0 -> pending;
// unresolvedWarnings > 0 -> optimized; else ready.
func (s *DispatchStoreService) deriveStatus(runCount, unresolvedWarnings int) models.DispatchStatusValue {
	switch {
	case runCount == 0:
		return models.DispatchPending
	case unresolvedWarnings > 0:
		return models.DispatchOptimized
	default:
		return models.DispatchReady
	}
}

// efficiencyScore computes round(100 * guidesAssigned / guidesNeeded)
// across all runs, or 100 when there is no demand (spec §4.4).
func efficiencyScore(guidesAssigned, guidesNeeded int) int {
	if guidesNeeded <= 0 {
		return 100
	}
	score := int((100*guidesAssigned + guidesNeeded/2) / guidesNeeded)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// AssertNotDispatched fails mutation entry points once the day is frozen
// (spec §4.4, invariant 6).
func (s *DispatchStoreService) AssertNotDispatched(ctx context.Context, orgID, date, action string) error {
	ds, err := s.dispatchRepo.GetOrCreate(ctx, orgID, date)
	if err != nil {
		return fmt.Errorf("assert not dispatched: %w", err)
	}
	if ds.IsDispatched() {
		return direrr.DispatchFrozen(date, fmt.Sprintf("dispatch for %s is already dispatched: cannot %s", date, action))
	}
	return nil
}

// MarkDispatched freezes the day (the dispatch(date) public operation's
// persistence step).
func (s *DispatchStoreService) MarkDispatched(ctx context.Context, orgID, date, dispatchedBy string) error {
	if err := s.dispatchRepo.MarkDispatched(ctx, orgID, date, dispatchedBy); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

func (s *DispatchStoreService) loadWarnings(ctx context.Context, orgID, date string) ([]models.Warning, error) {
	warnings, err := s.warningRepo.ListForDate(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("load warnings: %w", err)
	}
	return warnings, nil
}
