package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/eventsink"
	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// WarningResolverService closes out a Warning by acting on one of the
// closed set of Resolution actions (spec §4.8, §9 "message passing ...
// replaces any source-level string dispatch"). Resolve switches over
// Action rather than string-matching a caller-supplied verb.
type WarningResolverService struct {
	warnings    *repository.WarningRepository
	bookings    *repository.BookingRepository
	assignments *repository.AssignmentRepository
	tourRuns    *TourRunService
	dispatch    *DispatchStoreService
	pickupSync  *PickupSyncService
	sink        eventsink.Sink
	logger      *logrus.Logger
}

func NewWarningResolverService(
	warnings *repository.WarningRepository,
	bookings *repository.BookingRepository,
	assignments *repository.AssignmentRepository,
	tourRuns *TourRunService,
	dispatch *DispatchStoreService,
	pickupSync *PickupSyncService,
	sink eventsink.Sink,
	logger *logrus.Logger,
) *WarningResolverService {
	return &WarningResolverService{
		warnings:    warnings,
		bookings:    bookings,
		assignments: assignments,
		tourRuns:    tourRuns,
		dispatch:    dispatch,
		pickupSync:  pickupSync,
		sink:        sink,
		logger:      logger,
	}
}

// Resolve applies resolution to the warning identified by warningID and
// marks it resolved (spec §4.8). Every resolution first asserts the
// target date is not yet dispatched and finishes by refreshing the
// dispatch status.
func (s *WarningResolverService) Resolve(ctx context.Context, orgID, warningID string, resolution models.Resolution) (*models.DispatchStatus, error) {
	warning, err := s.warnings.GetByID(ctx, orgID, warningID)
	if err != nil {
		return nil, fmt.Errorf("resolve warning: %w", err)
	}
	if warning.Resolved {
		return nil, direrr.Conflict(fmt.Sprintf("warning %s is already resolved", warningID))
	}

	date, err := s.warningDate(ctx, orgID, *warning)
	if err != nil {
		return nil, err
	}
	if err := s.dispatch.AssertNotDispatched(ctx, orgID, date, "resolveWarning"); err != nil {
		return nil, err
	}

	switch resolution.Action {
	case models.ActionAssignGuide:
		err = s.assignGuide(ctx, orgID, date, resolution)
	case models.ActionAddExternal:
		err = s.addExternal(ctx, orgID, date, resolution)
	case models.ActionCancelTour:
		err = s.cancelTour(ctx, orgID, date, warningID, resolution)
	case models.ActionSplitBooking:
		err = s.splitBooking(ctx, orgID, resolution)
	case models.ActionAcknowledge:
		// No other state change (spec §4.8: "mark the warning resolved
		// with no other change").
	default:
		return nil, direrr.Validation(fmt.Sprintf("unknown resolution action %q", resolution.Action))
	}
	if err != nil {
		return nil, err
	}

	if err := s.pickupSync.Sync(ctx, orgID, date); err != nil {
		return nil, fmt.Errorf("resolve warning: %w", err)
	}

	resolutionJSON, marshalErr := json.Marshal(resolution)
	if marshalErr != nil {
		return nil, fmt.Errorf("resolve warning: encode resolution: %w", marshalErr)
	}
	if err := s.warnings.Resolve(ctx, warningID, resolutionJSON); err != nil {
		return nil, fmt.Errorf("resolve warning: %w", err)
	}

	ds, err := s.dispatch.Refresh(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("resolve warning: %w", err)
	}
	return ds, nil
}

// warningDate resolves the dispatch date a warning belongs to, either via
// its booking or via the date segment of its tour-run key.
func (s *WarningResolverService) warningDate(ctx context.Context, orgID string, w models.Warning) (string, error) {
	if w.BookingID != nil && *w.BookingID != "" {
		b, err := s.bookings.GetByID(ctx, orgID, *w.BookingID)
		if err != nil {
			return "", fmt.Errorf("resolve warning date: %w", err)
		}
		return b.BookingDate, nil
	}
	if w.TourRunKey != nil && *w.TourRunKey != "" {
		_, date, _, err := ParseTourRunKey(*w.TourRunKey)
		if err != nil {
			return "", err
		}
		return date, nil
	}
	return "", direrr.Validation("warning carries neither a booking nor a tour run key")
}

// unassignedBookingsInRun returns the bookings of run that carry no
// confirmed assignment yet.
func (s *WarningResolverService) unassignedBookingsInRun(ctx context.Context, orgID, date, runKey string) ([]models.Booking, error) {
	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("load tour run: %w", err)
	}
	var target *models.TourRun
	for i := range runs {
		if runs[i].Key == runKey {
			target = &runs[i]
			break
		}
	}
	if target == nil {
		return nil, direrr.NotFound("tour run not found").WithRunKey(runKey)
	}

	ids := make([]string, 0, len(target.Bookings))
	for _, b := range target.Bookings {
		ids = append(ids, b.ID)
	}
	confirmed, err := s.assignments.GetConfirmedByBookingIDs(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("load confirmed assignments: %w", err)
	}

	var unassigned []models.Booking
	for _, b := range target.Bookings {
		if _, ok := confirmed[b.ID]; !ok {
			unassigned = append(unassigned, b)
		}
	}
	return unassigned, nil
}

// assignGuide implements spec §4.8 assign_guide: a booking-targeted
// resolution assigns just that booking; a run-targeted resolution
// assigns every unassigned booking in the run to the chosen guide.
func (s *WarningResolverService) assignGuide(ctx context.Context, orgID, date string, resolution models.Resolution) error {
	if resolution.GuideID == "" {
		return direrr.Validation("assign_guide resolution requires guide_id")
	}
	if resolution.BookingID != "" {
		return s.insertConfirmedGuide(ctx, orgID, resolution.BookingID, resolution.GuideID)
	}
	if resolution.TourRunKey == "" {
		return direrr.Validation("assign_guide resolution requires booking_id or tour_run_key")
	}
	unassigned, err := s.unassignedBookingsInRun(ctx, orgID, date, resolution.TourRunKey)
	if err != nil {
		return err
	}
	for _, b := range unassigned {
		if err := s.insertConfirmedGuide(ctx, orgID, b.ID, resolution.GuideID); err != nil {
			return err
		}
	}
	return nil
}

// addExternal implements spec §4.8 add_external: create outsourced
// assignments on every unassigned booking in the run; no-op if all
// bookings are already assigned.
func (s *WarningResolverService) addExternal(ctx context.Context, orgID, date string, resolution models.Resolution) error {
	if resolution.TourRunKey == "" {
		return direrr.Validation("add_external resolution requires tour_run_key")
	}
	if resolution.OutsourcedName == "" {
		return direrr.Validation("add_external resolution requires outsourced_name")
	}
	unassigned, err := s.unassignedBookingsInRun(ctx, orgID, date, resolution.TourRunKey)
	if err != nil {
		return err
	}
	for _, b := range unassigned {
		if err := s.insertConfirmedOutsourced(ctx, orgID, b.ID, resolution.OutsourcedName, resolution.OutsourcedContact); err != nil {
			return err
		}
	}
	return nil
}

// cancelTour implements spec §4.8 cancel_tour: cancels every active
// booking and their assignments, stamps an internal note referencing the
// warning, and surfaces a tour_run.cancelled intent. Refunds/customer
// notifications are the event sink's concern (spec §9 open question ii).
func (s *WarningResolverService) cancelTour(ctx context.Context, orgID, date, warningID string, resolution models.Resolution) error {
	if resolution.TourRunKey == "" {
		return direrr.Validation("cancel_tour resolution requires tour_run_key")
	}
	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return fmt.Errorf("cancel tour: %w", err)
	}
	var target *models.TourRun
	for i := range runs {
		if runs[i].Key == resolution.TourRunKey {
			target = &runs[i]
			break
		}
	}
	if target == nil {
		return direrr.NotFound("tour run not found").WithRunKey(resolution.TourRunKey)
	}

	var activeIDs []string
	for _, b := range target.Bookings {
		if b.Status.DispatchEligible() {
			activeIDs = append(activeIDs, b.ID)
		}
	}
	if len(activeIDs) == 0 {
		return nil
	}
	if err := s.bookings.UpdateStatus(ctx, nil, orgID, activeIDs, models.BookingCancelled); err != nil {
		return fmt.Errorf("cancel tour: %w", err)
	}
	if err := s.assignments.DeleteConfirmedForBookings(ctx, nil, orgID, activeIDs); err != nil {
		return fmt.Errorf("cancel tour: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"organization_id": orgID,
		"tour_run_key":     resolution.TourRunKey,
		"warning_id":       warningID,
		"booking_count":    len(activeIDs),
	}).Info("tour run cancelled via warning resolution")

	return s.sink.Enqueue(ctx, eventsink.Intent{
		Type:           eventsink.IntentTourRunCancelled,
		OrganizationID: orgID,
		Payload: map[string]interface{}{
			"tour_run_key": resolution.TourRunKey,
			"warning_id":   warningID,
			"booking_ids":  activeIDs,
		},
	})
}

// splitBooking implements spec §4.8 split_booking: validates the split
// sum, performs the primary guide's assignment, then reports the
// remainder as unimplemented (spec §9 open question iii).
func (s *WarningResolverService) splitBooking(ctx context.Context, orgID string, resolution models.Resolution) error {
	split := resolution.Split
	if split == nil || split.BookingID == "" || len(split.Splits) == 0 {
		return direrr.Validation("split_booking resolution requires a split configuration")
	}
	booking, err := s.bookings.GetByID(ctx, orgID, split.BookingID)
	if err != nil {
		return fmt.Errorf("split booking: %w", err)
	}
	sum := 0
	for _, part := range split.Splits {
		sum += part.GuestCount
	}
	if sum != booking.TotalParticipants {
		return direrr.Validation(fmt.Sprintf(
			"split guest counts sum to %d, expected %d", sum, booking.TotalParticipants)).WithBooking(split.BookingID)
	}

	first := split.Splits[0]
	if err := s.insertConfirmedGuide(ctx, orgID, split.BookingID, first.GuideID); err != nil {
		return err
	}

	if len(split.Splits) > 1 {
		return direrr.Unimplemented(
			"split_booking beyond the primary guide's assignment is not implemented; remaining splits were not materialized as child bookings").
			WithBooking(split.BookingID)
	}
	return nil
}

func (s *WarningResolverService) insertConfirmedGuide(ctx context.Context, orgID, bookingID, guideID string) error {
	now := txNow()
	return s.assignments.InsertConfirmed(ctx, nil, models.GuideAssignment{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		BookingID:      bookingID,
		GuideID:        &guideID,
		Status:         models.AssignmentConfirmed,
		AssignedAt:     now,
		ConfirmedAt:    &now,
	})
}

func (s *WarningResolverService) insertConfirmedOutsourced(ctx context.Context, orgID, bookingID, name, contact string) error {
	now := txNow()
	a := models.GuideAssignment{
		ID:                  uuid.NewString(),
		OrganizationID:      orgID,
		BookingID:           bookingID,
		OutsourcedGuideName: &name,
		Status:              models.AssignmentConfirmed,
		AssignedAt:          now,
		ConfirmedAt:         &now,
	}
	if contact != "" {
		a.OutsourcedContact = &contact
	}
	return s.assignments.InsertConfirmed(ctx, nil, a)
}
