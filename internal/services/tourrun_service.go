package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// TourRunService aggregates confirmed bookings into tour runs and
// computes their staffing needs (spec §4.3, C4).
type TourRunService struct {
	bookings    *repository.BookingRepository
	tours       *repository.TourRepository
	assignments *repository.AssignmentRepository
	logger      *logrus.Logger
}

func NewTourRunService(
	bookings *repository.BookingRepository,
	tours *repository.TourRepository,
	assignments *repository.AssignmentRepository,
	logger *logrus.Logger,
) *TourRunService {
	return &TourRunService{bookings: bookings, tours: tours, assignments: assignments, logger: logger}
}

// BuildRuns aggregates every dispatch-eligible booking for date into
// TourRuns, sorted by time ascending (spec §4.3 steps 1-5).
func (s *TourRunService) BuildRuns(ctx context.Context, orgID, date string) ([]models.TourRun, error) {
	bookings, err := s.bookings.ListDispatchEligibleForDate(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("build tour runs: %w", err)
	}

	tourIDs := make([]string, 0, len(bookings))
	seenTour := make(map[string]bool)
	for _, b := range bookings {
		if !seenTour[b.TourID] {
			seenTour[b.TourID] = true
			tourIDs = append(tourIDs, b.TourID)
		}
	}
	tours, err := s.tours.GetByIDs(ctx, orgID, tourIDs)
	if err != nil {
		return nil, fmt.Errorf("build tour runs: %w", err)
	}

	groups := make(map[string]*models.TourRun)
	var order []string
	bookingIDs := make([]string, 0, len(bookings))

	for _, b := range bookings {
		// Reject silently any booking lacking tourId or bookingTime
		// (spec §4.3 step 2).
		if b.TourID == "" || b.BookingTime == "" {
			continue
		}
		tour, ok := tours[b.TourID]
		if !ok {
			continue
		}
		key := TourRunKey(b.TourID, b.BookingDate, b.BookingTime)
		run, exists := groups[key]
		if !exists {
			run = &models.TourRun{
				Key:             key,
				TourID:          b.TourID,
				TourName:        tour.Name,
				Date:            b.BookingDate,
				Time:            b.BookingTime,
				DurationMinutes: tour.DurationMinutes,
				GuestsPerGuide:  tour.EffectiveGuestsPerGuide(),
			}
			groups[key] = run
			order = append(order, key)
		}
		run.Bookings = append(run.Bookings, b)
		run.TotalGuests += b.TotalParticipants
		bookingIDs = append(bookingIDs, b.ID)
		if run.PrimaryZoneID == nil && b.PickupZoneID != nil {
			run.PrimaryZoneID = b.PickupZoneID
		}
	}

	confirmed, err := s.assignments.GetConfirmedByBookingIDs(ctx, orgID, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("build tour runs: %w", err)
	}

	runs := make([]models.TourRun, 0, len(order))
	for _, key := range order {
		run := groups[key]
		run.GuidesNeeded = models.CeilDiv(run.TotalGuests, run.GuestsPerGuide)

		assigneeKeys := make(map[string]bool)
		run.AssignedGuideByBooking = make(map[string]string, len(run.Bookings))
		for _, b := range run.Bookings {
			if a, ok := confirmed[b.ID]; ok {
				key := a.Assignee().Key()
				assigneeKeys[key] = true
				run.AssignedGuideByBooking[b.ID] = key
			}
		}
		for k := range assigneeKeys {
			run.AssigneeKeys = append(run.AssigneeKeys, k)
		}
		sort.Strings(run.AssigneeKeys)
		run.GuidesAssigned = len(run.AssigneeKeys)
		run.DeriveStatus()

		runs = append(runs, *run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return MustMinutes(runs[i].Time) < MustMinutes(runs[j].Time)
	})

	return runs, nil
}

// FirstTimeCustomers computes, in one grouped query, which customer IDs
// among those touched by bookings have zero completed bookings under this
// tenant (spec §4.3 step 6).
func (s *TourRunService) FirstTimeCustomers(ctx context.Context, orgID string, bookings []models.Booking) (map[string]bool, error) {
	customerIDs := make([]string, 0, len(bookings))
	seen := make(map[string]bool)
	for _, b := range bookings {
		if b.CustomerID == "" || seen[b.CustomerID] {
			continue
		}
		seen[b.CustomerID] = true
		customerIDs = append(customerIDs, b.CustomerID)
	}

	completed, err := s.bookings.CountCompletedByCustomers(ctx, orgID, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("compute first-time customers: %w", err)
	}

	result := make(map[string]bool, len(customerIDs))
	for _, id := range customerIDs {
		result[id] = completed[id] == 0
	}
	return result, nil
}
