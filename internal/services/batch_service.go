package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// BatchMutationService validates and applies a caller-ordered sequence of
// assign/unassign/reassign/time-shift changes against a single simulated
// day, writing nothing until every change has been proven safe (spec
// §4.7, C8).
type BatchMutationService struct {
	bookings    *repository.BookingRepository
	assignments *repository.AssignmentRepository
	tours       *repository.TourRepository
	guides      *repository.GuideRepository
	dispatch    *DispatchStoreService
	pickupSync  *PickupSyncService
	logger      *logrus.Logger
}

func NewBatchMutationService(
	bookings *repository.BookingRepository,
	assignments *repository.AssignmentRepository,
	tours *repository.TourRepository,
	guides *repository.GuideRepository,
	dispatch *DispatchStoreService,
	pickupSync *PickupSyncService,
	logger *logrus.Logger,
) *BatchMutationService {
	return &BatchMutationService{
		bookings:    bookings,
		assignments: assignments,
		tours:       tours,
		guides:      guides,
		dispatch:    dispatch,
		pickupSync:  pickupSync,
		logger:      logger,
	}
}

// simBooking is one booking's state inside the in-memory simulation the
// batch engine validates before writing anything.
type simBooking struct {
	booking   models.Booking
	tourID    string
	duration  int
	guideKey  string // "" means unassigned; otherwise the internal guide ID
	timeShift bool
}

// Apply runs the full validate-then-apply pipeline (spec §4.7 steps 1-9).
// On any validation failure nothing is written and the error describes
// the first failing check.
func (s *BatchMutationService) Apply(ctx context.Context, orgID, date string, changes []models.Change) (models.BatchApplyResult, error) {
	if err := s.dispatch.AssertNotDispatched(ctx, orgID, date, "batchApplyChanges"); err != nil {
		return models.BatchApplyResult{}, err
	}
	if len(changes) == 0 {
		return models.BatchApplyResult{Applied: true}, nil
	}

	affectedBookingIDs := s.collectAffectedBookings(changes)
	affectedBookings, err := s.bookings.GetByIDs(ctx, orgID, affectedBookingIDs)
	if err != nil {
		return models.BatchApplyResult{}, fmt.Errorf("batch apply: %w", err)
	}
	for _, id := range affectedBookingIDs {
		b, ok := affectedBookings[id]
		if !ok {
			return models.BatchApplyResult{}, direrr.NotFound("booking not found").WithBooking(id)
		}
		if b.BookingDate != date {
			return models.BatchApplyResult{}, direrr.Validation(
				fmt.Sprintf("booking %s belongs to %s, not the batch date %s", id, b.BookingDate, date)).WithBooking(id)
		}
	}

	sim, err := s.buildSimulation(ctx, orgID, date, affectedBookings)
	if err != nil {
		return models.BatchApplyResult{}, fmt.Errorf("batch apply: %w", err)
	}

	for _, c := range changes {
		if err := s.applyToSimulation(sim, c); err != nil {
			return models.BatchApplyResult{}, err
		}
	}

	if err := s.validateSimulation(ctx, orgID, sim); err != nil {
		return models.BatchApplyResult{}, err
	}

	if err := s.commit(ctx, orgID, date, changes, sim, affectedBookings); err != nil {
		return models.BatchApplyResult{}, err
	}

	if err := s.pickupSync.Sync(ctx, orgID, date); err != nil {
		return models.BatchApplyResult{}, fmt.Errorf("batch apply: %w", err)
	}
	if _, err := s.dispatch.Refresh(ctx, orgID, date); err != nil {
		return models.BatchApplyResult{}, fmt.Errorf("batch apply: %w", err)
	}

	results := make([]models.ChangeResult, 0, len(changes))
	for _, c := range changes {
		results = append(results, models.ChangeResult{Change: c, Applied: true})
	}

	s.logger.WithFields(logrus.Fields{
		"organization_id": orgID,
		"date":            date,
		"change_count":    len(changes),
	}).Info("batch mutation applied")

	return models.BatchApplyResult{Applied: true, Results: results}, nil
}

func (s *BatchMutationService) collectAffectedBookings(changes []models.Change) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range changes {
		for _, id := range c.Bookings() {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// buildSimulation seeds the per-booking simulation from every confirmed
// assignment of the day (so a guide's full schedule, not just the
// affected bookings, is visible to the overlap/capacity checks), then
// layers in the affected bookings that have no current assignment (spec
// §4.7 step 4).
func (s *BatchMutationService) buildSimulation(ctx context.Context, orgID, date string, affected map[string]models.Booking) (map[string]*simBooking, error) {
	confirmed, err := s.assignments.ListConfirmedForDate(ctx, orgID, date)
	if err != nil {
		return nil, err
	}

	sim := make(map[string]*simBooking, len(confirmed)+len(affected))
	tourIDs := make(map[string]bool)

	for _, row := range confirmed {
		tourIDs[row.TourID] = true
		sim[row.BookingID] = &simBooking{
			booking: models.Booking{
				ID:                row.BookingID,
				TourID:            row.TourID,
				BookingDate:       row.BookingDate,
				BookingTime:       row.BookingTime,
				TotalParticipants: row.TotalParticipants,
				ExperienceMode:    row.ExperienceMode,
			},
			tourID:   row.TourID,
			guideKey: row.Assignee().Key(),
		}
	}

	for id, b := range affected {
		tourIDs[b.TourID] = true
		if existing, ok := sim[id]; ok {
			existing.booking = b
			continue
		}
		sim[id] = &simBooking{booking: b, tourID: b.TourID}
	}

	ids := make([]string, 0, len(tourIDs))
	for id := range tourIDs {
		ids = append(ids, id)
	}
	tours, err := s.tours.GetByIDs(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	for _, entry := range sim {
		if t, ok := tours[entry.tourID]; ok {
			entry.duration = t.DurationMinutes
		}
	}

	return sim, nil
}

// applyToSimulation mutates sim according to one change, in order (spec
// §5 ordering guarantee: later changes see earlier ones' effects).
func (s *BatchMutationService) applyToSimulation(sim map[string]*simBooking, c models.Change) error {
	switch c.Type {
	case models.ChangeAssign:
		entry, ok := sim[c.BookingID]
		if !ok {
			return direrr.NotFound("booking not found").WithBooking(c.BookingID)
		}
		entry.guideKey = c.ToGuideID

	case models.ChangeReassign:
		for _, id := range c.BookingIDs {
			entry, ok := sim[id]
			if !ok {
				return direrr.NotFound("booking not found").WithBooking(id)
			}
			entry.guideKey = c.ToGuideID
		}

	case models.ChangeUnassign:
		for _, id := range c.BookingIDs {
			entry, ok := sim[id]
			if !ok {
				return direrr.NotFound("booking not found").WithBooking(id)
			}
			entry.guideKey = ""
		}

	case models.ChangeTimeShift:
		if _, err := Minutes(c.NewStartTime); err != nil {
			return direrr.Validation(fmt.Sprintf("invalid time-shift start time %q", c.NewStartTime))
		}
		for _, id := range c.BookingIDs {
			entry, ok := sim[id]
			if !ok {
				return direrr.NotFound("booking not found").WithBooking(id)
			}
			if _, err := AddMinutes(c.NewStartTime, entry.duration); err != nil {
				return direrr.Validation(fmt.Sprintf("invalid time-shift start time %q", c.NewStartTime)).WithBooking(id)
			}
			if MustMinutes(c.NewStartTime)+entry.duration > 24*60 {
				return direrr.ConstraintViolation(
					fmt.Sprintf("time-shift for booking %s starting %s for %d minutes would end after 24:00",
						id, c.NewStartTime, entry.duration)).WithBooking(id)
			}
			entry.booking.BookingTime = c.NewStartTime
			entry.timeShift = true
		}

	default:
		return direrr.Validation(fmt.Sprintf("unknown change type %q", c.Type))
	}
	return nil
}

// validateSimulation checks the final simulated state per guide, stopping
// at and returning the first failing check (spec §4.7 step 6).
func (s *BatchMutationService) validateSimulation(ctx context.Context, orgID string, sim map[string]*simBooking) error {
	byGuide := make(map[string][]*simBooking)
	var guideKeys []string
	for _, entry := range sim {
		if entry.guideKey == "" {
			continue
		}
		if _, ok := byGuide[entry.guideKey]; !ok {
			guideKeys = append(guideKeys, entry.guideKey)
		}
		byGuide[entry.guideKey] = append(byGuide[entry.guideKey], entry)
	}
	sort.Strings(guideKeys)

	guides, err := s.guidesByID(ctx, orgID, guideKeys)
	if err != nil {
		return err
	}

	for _, guideKey := range guideKeys {
		entries := byGuide[guideKey]

		byRunKey := make(map[string][]*simBooking)
		var runKeys []string
		for _, e := range entries {
			key := TourRunKey(e.tourID, e.booking.BookingDate, e.booking.BookingTime)
			if _, ok := byRunKey[key]; !ok {
				runKeys = append(runKeys, key)
			}
			byRunKey[key] = append(byRunKey[key], e)
		}
		sort.Strings(runKeys)

		capacity := models.DefaultVehicleCapacity
		if g, ok := guides[guideKey]; ok {
			capacity = g.EffectiveCapacity()
		}

		for _, runKey := range runKeys {
			guests := 0
			for _, e := range byRunKey[runKey] {
				guests += e.booking.TotalParticipants
			}
			if guests > capacity {
				return direrr.ConstraintViolation(
					fmt.Sprintf("guide %s would carry %d guests on run %s, exceeding capacity %d", guideKey, guests, runKey, capacity)).
					WithGuide(guideKey).WithRunKey(runKey)
			}
		}

		byTimeSlot := make(map[string][]*simBooking)
		for _, e := range entries {
			byTimeSlot[e.booking.BookingTime] = append(byTimeSlot[e.booking.BookingTime], e)
		}
		for timeSlot, slotEntries := range byTimeSlot {
			if len(slotEntries) <= 1 {
				continue
			}
			for _, e := range slotEntries {
				if e.booking.IsCharter() {
					return direrr.ConstraintViolation(
						fmt.Sprintf("booking %s is charter-exclusive but shares %s slot %s with other bookings",
							e.booking.ID, guideKey, timeSlot)).WithGuide(guideKey).WithBooking(e.booking.ID)
				}
			}
		}

		intervals := make([]models.ScheduleInterval, 0, len(runKeys))
		for _, runKey := range runKeys {
			e := byRunKey[runKey][0]
			end, _ := AddMinutes(e.booking.BookingTime, e.duration)
			intervals = append(intervals, models.ScheduleInterval{TourRunKey: runKey, Start: e.booking.BookingTime, End: end})
		}
		for i := 0; i < len(intervals); i++ {
			for j := i + 1; j < len(intervals); j++ {
				if IntervalOverlaps(intervals[i], intervals[j]) {
					return direrr.ConstraintViolation(
						fmt.Sprintf("guide %s has overlapping runs %s and %s", guideKey, intervals[i].TourRunKey, intervals[j].TourRunKey)).
						WithGuide(guideKey)
				}
			}
		}
	}

	return nil
}

func (s *BatchMutationService) guidesByID(ctx context.Context, orgID string, guideIDs []string) (map[string]models.Guide, error) {
	result := make(map[string]models.Guide, len(guideIDs))
	for _, id := range guideIDs {
		g, err := s.guideByIDOrDefault(ctx, orgID, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			result[id] = *g
		}
	}
	return result, nil
}

func (s *BatchMutationService) guideByIDOrDefault(ctx context.Context, orgID, id string) (*models.Guide, error) {
	g, err := s.guides.GetByID(ctx, orgID, id)
	if err != nil {
		if direrr.As(err, direrr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

// commit applies every change in one transaction (spec §4.7 step 7).
func (s *BatchMutationService) commit(ctx context.Context, orgID, date string, changes []models.Change, sim map[string]*simBooking, affected map[string]models.Booking) error {
	tx, err := s.assignments.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("batch apply: begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := txNow()

	for _, c := range changes {
		switch c.Type {
		case models.ChangeAssign:
			if err := s.writeConfirmed(ctx, tx, orgID, c.BookingID, c.ToGuideID, now); err != nil {
				return fmt.Errorf("batch apply: %w", err)
			}

		case models.ChangeReassign:
			for _, id := range c.BookingIDs {
				if err := s.writeConfirmed(ctx, tx, orgID, id, c.ToGuideID, now); err != nil {
					return fmt.Errorf("batch apply: %w", err)
				}
			}

		case models.ChangeUnassign:
			if err := s.assignments.DeleteConfirmedForBookings(ctx, tx, orgID, c.BookingIDs); err != nil {
				return fmt.Errorf("batch apply: %w", err)
			}

		case models.ChangeTimeShift:
			for _, id := range c.BookingIDs {
				pickupTime := c.NewStartTime
				if err := s.bookings.UpdateSchedule(ctx, tx, orgID, id, c.NewStartTime, &pickupTime); err != nil {
					return fmt.Errorf("batch apply: %w", err)
				}
				if err := s.assignments.UpdateCalculatedPickupTime(ctx, tx, id, c.NewStartTime); err != nil {
					return fmt.Errorf("batch apply: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("batch apply: commit: %w", err)
	}
	return nil
}

// writeConfirmed inserts a fresh confirmed assignment for bookingID,
// superseding any prior confirmed row (spec §4.7 step 7: "delete any
// existing confirmed assignment for that booking, then insert").
func (s *BatchMutationService) writeConfirmed(ctx context.Context, tx *sqlx.Tx, orgID, bookingID, guideID string, now time.Time) error {
	return s.assignments.InsertConfirmed(ctx, tx, models.GuideAssignment{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		BookingID:      bookingID,
		GuideID:        &guideID,
		Status:         models.AssignmentConfirmed,
		AssignedAt:     now,
		ConfirmedAt:    &now,
	})
}

func txNow() time.Time { return time.Now() }
