package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/eventsink"
	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// DispatchService is the facade exposing the public operations of spec §6.
// It composes C1-C10 plus the warning resolver and never touches a
// repository directly for anything the underlying services already own.
type DispatchService struct {
	dispatchStore *DispatchStoreService
	tourRuns      *TourRunService
	availability  *AvailabilityService
	timelines     *TimelineService
	optimizer     *OptimizerService
	batch         *BatchMutationService
	pickupSync    *PickupSyncService
	warningResolver *WarningResolverService

	guides      *repository.GuideRepository
	assignments *repository.AssignmentRepository
	bookings    *repository.BookingRepository
	warnings    *repository.WarningRepository

	sink   eventsink.Sink
	logger *logrus.Logger
}

func NewDispatchService(
	dispatchStore *DispatchStoreService,
	tourRuns *TourRunService,
	availability *AvailabilityService,
	timelines *TimelineService,
	optimizer *OptimizerService,
	batch *BatchMutationService,
	pickupSync *PickupSyncService,
	warningResolver *WarningResolverService,
	guides *repository.GuideRepository,
	assignments *repository.AssignmentRepository,
	bookings *repository.BookingRepository,
	warnings *repository.WarningRepository,
	sink eventsink.Sink,
	logger *logrus.Logger,
) *DispatchService {
	return &DispatchService{
		dispatchStore:   dispatchStore,
		tourRuns:        tourRuns,
		availability:    availability,
		timelines:       timelines,
		optimizer:       optimizer,
		batch:           batch,
		pickupSync:      pickupSync,
		warningResolver: warningResolver,
		guides:          guides,
		assignments:     assignments,
		bookings:        bookings,
		warnings:        warnings,
		sink:            sink,
		logger:          logger,
	}
}

// GetDispatchStatus implements getDispatchStatus(date).
func (s *DispatchService) GetDispatchStatus(ctx context.Context, orgID, date string) (*models.DispatchStatus, error) {
	return s.dispatchStore.Refresh(ctx, orgID, date)
}

// GetTourRuns implements getTourRuns(date).
func (s *DispatchService) GetTourRuns(ctx context.Context, orgID, date string) ([]models.TourRun, error) {
	return s.tourRuns.BuildRuns(ctx, orgID, date)
}

// GetAvailableGuides implements getAvailableGuides(date): every active
// guide joined with resolved availability and the day's committed schedule.
func (s *DispatchService) GetAvailableGuides(ctx context.Context, orgID, date string) ([]models.AvailableGuide, error) {
	guides, err := s.guides.ListActive(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get available guides: %w", err)
	}
	guideIDs := make([]string, 0, len(guides))
	for _, g := range guides {
		guideIDs = append(guideIDs, g.ID)
	}
	availByGuide := s.availability.ResolveBatch(ctx, orgID, guideIDs, date)

	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("get available guides: %w", err)
	}
	scheduleByGuide := make(map[string][]models.ScheduleInterval)
	for _, run := range runs {
		end, _ := AddMinutes(run.Time, run.DurationMinutes)
		for _, key := range run.AssigneeKeys {
			scheduleByGuide[key] = append(scheduleByGuide[key], models.ScheduleInterval{
				TourRunKey: run.Key,
				Start:      run.Time,
				End:        end,
			})
		}
	}

	out := make([]models.AvailableGuide, 0, len(guides))
	for _, g := range guides {
		out = append(out, models.AvailableGuide{
			Guide:        g,
			Availability: availByGuide[g.ID],
			Schedule:     scheduleByGuide[g.ID],
		})
	}
	return out, nil
}

// GetGuideTimelines implements getGuideTimelines(date).
func (s *DispatchService) GetGuideTimelines(ctx context.Context, orgID, date string) ([]models.GuideTimeline, error) {
	return s.timelines.BuildTimelines(ctx, orgID, date)
}

// Optimize implements optimize(date) (spec §4.5, §6): build the day's
// runs, run the greedy pass, persist every outcome and warning, sync
// pickups, and refresh the dispatch status before returning.
func (s *DispatchService) Optimize(ctx context.Context, orgID, date string) (models.OptimizationResult, error) {
	if err := s.dispatchStore.AssertNotDispatched(ctx, orgID, date, "optimize"); err != nil {
		return models.OptimizationResult{}, err
	}

	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	result, err := s.optimizer.Optimize(ctx, orgID, date, runs)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	now := txNow()
	for _, outcome := range result.Assignments {
		a := models.GuideAssignment{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			BookingID:      outcome.BookingID,
			Status:         models.AssignmentConfirmed,
			AssignedAt:     now,
			ConfirmedAt:    &now,
		}
		if outcome.Assignee.IsInternal() {
			guideID := outcome.Assignee.InternalGuideID
			a.GuideID = &guideID
		} else {
			name := outcome.Assignee.ExternalName
			a.OutsourcedGuideName = &name
		}
		if err := s.assignments.InsertConfirmed(ctx, nil, a); err != nil {
			return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
		}
	}

	for _, w := range result.Warnings {
		w.ID = uuid.NewString()
		w.OrganizationID = orgID
		w.Date = date
		if err := s.warnings.Upsert(ctx, w); err != nil {
			return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
		}
	}

	if err := s.pickupSync.Sync(ctx, orgID, date); err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}
	if _, err := s.dispatchStore.Refresh(ctx, orgID, date); err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	enriched, err := s.enrichOutcomes(ctx, orgID, date, result.Assignments)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}
	result.Assignments = enriched

	s.logger.WithFields(logrus.Fields{
		"organization_id": orgID,
		"date":            date,
		"assignment_count": len(result.Assignments),
		"warning_count":     len(result.Warnings),
	}).Info("optimize completed")

	return result, nil
}

// enrichOutcomes attaches the pickup order/time/drive-minutes that
// PickupSyncService just derived onto each outcome the optimizer returned,
// since the optimizer itself only knows tour-level assignment, not pickup
// sequencing.
func (s *DispatchService) enrichOutcomes(ctx context.Context, orgID, date string, outcomes []models.AssignmentOutcome) ([]models.AssignmentOutcome, error) {
	confirmed, err := s.assignments.ListConfirmedForDate(ctx, orgID, date)
	if err != nil {
		return nil, err
	}
	byBooking := make(map[string]models.AssignmentWithBooking, len(confirmed))
	for _, row := range confirmed {
		byBooking[row.BookingID] = row
	}
	for i, o := range outcomes {
		row, ok := byBooking[o.BookingID]
		if !ok {
			continue
		}
		if row.PickupOrder != nil {
			outcomes[i].PickupOrder = *row.PickupOrder
		}
		if row.CalculatedPickupTime != nil {
			outcomes[i].PickupTime = *row.CalculatedPickupTime
		}
		if row.DriveTimeMinutes != nil {
			outcomes[i].DriveTimeMinutes = *row.DriveTimeMinutes
		}
	}
	return outcomes, nil
}

// ManualAssign implements manualAssign(bookingId, guideId) by routing
// through the batch engine as a single assign change, so it gets the same
// capacity/overlap/charter validation as a batch-applied one.
func (s *DispatchService) ManualAssign(ctx context.Context, orgID, date, bookingID, guideID string) (models.BatchApplyResult, error) {
	change := models.Change{Type: models.ChangeAssign, BookingID: bookingID, ToGuideID: guideID}
	return s.batch.Apply(ctx, orgID, date, []models.Change{change})
}

// Unassign implements unassign(bookingId): unlike the batch engine's
// guide-scoped unassign, this operation only identifies the booking, so it
// deletes the booking's current confirmed assignment directly rather than
// forcing the caller to know the guide it is currently assigned to.
func (s *DispatchService) Unassign(ctx context.Context, orgID, bookingID string) error {
	booking, err := s.bookings.GetByID(ctx, orgID, bookingID)
	if err != nil {
		return fmt.Errorf("unassign: %w", err)
	}
	if err := s.dispatchStore.AssertNotDispatched(ctx, orgID, booking.BookingDate, "unassign"); err != nil {
		return err
	}
	if err := s.assignments.DeleteConfirmedForBookings(ctx, nil, orgID, []string{bookingID}); err != nil {
		return fmt.Errorf("unassign: %w", err)
	}
	if err := s.pickupSync.Sync(ctx, orgID, booking.BookingDate); err != nil {
		return fmt.Errorf("unassign: %w", err)
	}
	if _, err := s.dispatchStore.Refresh(ctx, orgID, booking.BookingDate); err != nil {
		return fmt.Errorf("unassign: %w", err)
	}
	return nil
}

// UpdatePickupTime implements updatePickupTime(bookingId, guideId, newTime):
// guideId confirms the caller's view of who currently holds the booking
// before the time-shift is applied, same ordering guarantee the batch
// engine gives a caller-supplied change.
func (s *DispatchService) UpdatePickupTime(ctx context.Context, orgID, date, bookingID, guideID, newTime string) (models.BatchApplyResult, error) {
	confirmed, err := s.assignments.GetConfirmedByBookingIDs(ctx, orgID, []string{bookingID})
	if err != nil {
		return models.BatchApplyResult{}, fmt.Errorf("update pickup time: %w", err)
	}
	current, ok := confirmed[bookingID]
	if !ok {
		return models.BatchApplyResult{}, direrr.NotFound("booking has no confirmed assignment").WithBooking(bookingID)
	}
	if current.Assignee().Key() != guideID {
		return models.BatchApplyResult{}, direrr.Conflict(
			fmt.Sprintf("booking %s is no longer assigned to %s", bookingID, guideID)).WithBooking(bookingID).WithGuide(guideID)
	}

	change := models.Change{Type: models.ChangeTimeShift, BookingIDs: []string{bookingID}, NewStartTime: newTime}
	return s.batch.Apply(ctx, orgID, date, []models.Change{change})
}

// BatchApplyChanges implements batchApplyChanges(date, changes[]).
func (s *DispatchService) BatchApplyChanges(ctx context.Context, orgID, date string, changes []models.Change) (models.BatchApplyResult, error) {
	return s.batch.Apply(ctx, orgID, date, changes)
}

// AddOutsourcedGuideToRun implements addOutsourcedGuideToRun(date,
// tourRunKey, name, contact?): assigns every unassigned booking in the run
// to a freshly-named outsourced guide, the same mechanics the add_external
// resolution uses, but callable without a warning to resolve.
func (s *DispatchService) AddOutsourcedGuideToRun(ctx context.Context, orgID, date, tourRunKey, name, contact string) (*models.DispatchStatus, error) {
	if err := s.dispatchStore.AssertNotDispatched(ctx, orgID, date, "addOutsourcedGuideToRun"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, direrr.Validation("outsourced guide name is required")
	}

	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("add outsourced guide: %w", err)
	}
	var target *models.TourRun
	for i := range runs {
		if runs[i].Key == tourRunKey {
			target = &runs[i]
			break
		}
	}
	if target == nil {
		return nil, direrr.NotFound("tour run not found").WithRunKey(tourRunKey)
	}

	bookingIDs := make([]string, 0, len(target.Bookings))
	for _, b := range target.Bookings {
		bookingIDs = append(bookingIDs, b.ID)
	}
	confirmed, err := s.assignments.GetConfirmedByBookingIDs(ctx, orgID, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("add outsourced guide: %w", err)
	}

	now := txNow()
	for _, b := range target.Bookings {
		if _, ok := confirmed[b.ID]; ok {
			continue
		}
		a := models.GuideAssignment{
			ID:                  uuid.NewString(),
			OrganizationID:      orgID,
			BookingID:           b.ID,
			OutsourcedGuideName: &name,
			Status:              models.AssignmentConfirmed,
			AssignedAt:          now,
			ConfirmedAt:         &now,
		}
		if contact != "" {
			a.OutsourcedContact = &contact
		}
		if err := s.assignments.InsertConfirmed(ctx, nil, a); err != nil {
			return nil, fmt.Errorf("add outsourced guide: %w", err)
		}
	}

	if err := s.pickupSync.Sync(ctx, orgID, date); err != nil {
		return nil, fmt.Errorf("add outsourced guide: %w", err)
	}
	return s.dispatchStore.Refresh(ctx, orgID, date)
}

// CreateTempGuideForDate implements createTempGuideForDate(date, name,
// phone, vehicleCapacity): materializes a guide row so later assignment
// and reporting can reference a stable ID, and makes it available for the
// whole of date via a single override row.
func (s *DispatchService) CreateTempGuideForDate(ctx context.Context, orgID, date, name, phone string, vehicleCapacity int) (*models.Guide, error) {
	if name == "" {
		return nil, direrr.Validation("temp guide name is required")
	}
	if vehicleCapacity <= 0 {
		return nil, direrr.Validation("vehicle capacity must be positive")
	}

	id := uuid.NewString()
	if err := s.guides.CreateOutsourced(ctx, orgID, id, name, phone, vehicleCapacity); err != nil {
		return nil, fmt.Errorf("create temp guide: %w", err)
	}

	override := models.AvailabilityOverride{
		ID:          uuid.NewString(),
		GuideID:     id,
		Date:        date,
		IsAvailable: true,
		StartTime:   stringPtr("00:00"),
		EndTime:     stringPtr("24:00"),
	}
	if err := s.availability.repo.UpsertOverride(ctx, override); err != nil {
		return nil, fmt.Errorf("create temp guide: %w", err)
	}

	guide, err := s.guides.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, fmt.Errorf("create temp guide: %w", err)
	}
	return guide, nil
}

func stringPtr(s string) *string { return &s }

// ResolveWarning implements resolveWarning(warningId, resolution).
func (s *DispatchService) ResolveWarning(ctx context.Context, orgID, warningID string, resolution models.Resolution) (*models.DispatchStatus, error) {
	return s.warningResolver.Resolve(ctx, orgID, warningID, resolution)
}

// Dispatch implements dispatch(date): freezes the day and enqueues the
// dispatch.completed intent (spec §4.4, §6).
func (s *DispatchService) Dispatch(ctx context.Context, orgID, date, dispatchedBy string) (models.DispatchResult, error) {
	ds, err := s.dispatchStore.Refresh(ctx, orgID, date)
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("dispatch: %w", err)
	}
	if ds.IsDispatched() {
		return models.DispatchResult{}, direrr.DispatchFrozen(date, fmt.Sprintf("dispatch for %s is already dispatched", date))
	}
	if ds.UnresolvedWarnings > 0 {
		return models.DispatchResult{}, direrr.Conflict(
			fmt.Sprintf("dispatch for %s has %d unresolved warnings", date, ds.UnresolvedWarnings))
	}

	if err := s.dispatchStore.MarkDispatched(ctx, orgID, date, dispatchedBy); err != nil {
		return models.DispatchResult{}, fmt.Errorf("dispatch: %w", err)
	}

	now := txNow()
	result := models.DispatchResult{
		Date:         date,
		DispatchedAt: now.Format("2006-01-02T15:04:05Z07:00"),
		DispatchedBy: dispatchedBy,
		TotalGuests:  ds.TotalGuests,
		TotalGuides:  ds.TotalGuides,
	}

	if err := s.sink.Enqueue(ctx, eventsink.Intent{
		Type:           eventsink.IntentDispatchCompleted,
		OrganizationID: orgID,
		OccurredAt:     now,
		Payload: map[string]interface{}{
			"date":          date,
			"dispatched_by": dispatchedBy,
			"total_guests":  ds.TotalGuests,
			"total_guides":  ds.TotalGuides,
		},
	}); err != nil {
		s.logger.WithFields(logrus.Fields{
			"organization_id": orgID,
			"date":            date,
			"error":           err,
		}).Warn("dispatch completed but event sink enqueue failed")
	}

	return result, nil
}
