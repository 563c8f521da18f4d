package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/config"
	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// PickupSyncService derives per-run pickup ordering, times, and drive
// gaps from confirmed assignments, then reconciles the pickup_assignments
// mirror and writes the derived fields back onto guide assignments (spec
// §4.6, C5). It runs after any assignment mutation and before C9.
type PickupSyncService struct {
	assignments *repository.AssignmentRepository
	pickups     *repository.PickupRepository
	cfg         config.DispatchConfig
	logger      *logrus.Logger
}

func NewPickupSyncService(
	assignments *repository.AssignmentRepository,
	pickups *repository.PickupRepository,
	cfg config.DispatchConfig,
	logger *logrus.Logger,
) *PickupSyncService {
	return &PickupSyncService{assignments: assignments, pickups: pickups, cfg: cfg, logger: logger}
}

type pickupGroupEntry struct {
	booking models.AssignmentWithBooking
	time    string // derived estimated pickup time, HH:MM
}

// Sync reconciles pickup order/time/drive-gap for every confirmed
// assignment of date, within one transaction.
func (s *PickupSyncService) Sync(ctx context.Context, orgID, date string) error {
	rows, err := s.assignments.ListConfirmedForDate(ctx, orgID, date)
	if err != nil {
		return fmt.Errorf("pickup sync: %w", err)
	}

	// Step 2: collapse to one assignment per booking, keeping the most
	// recently assigned (spec §4.6 step 2).
	latest := make(map[string]models.AssignmentWithBooking, len(rows))
	for _, r := range rows {
		if existing, ok := latest[r.BookingID]; !ok || r.AssignedAt.After(existing.AssignedAt) {
			latest[r.BookingID] = r
		}
	}

	// Step 3: group by (tourRunKey, effectiveGuideKey).
	type groupKey struct {
		runKey    string
		guideKey  string
	}
	groups := make(map[groupKey][]models.AssignmentWithBooking)
	var groupOrder []groupKey
	for _, r := range latest {
		runKey := TourRunKey(r.TourID, r.BookingDate, r.BookingTime)
		gk := groupKey{runKey: runKey, guideKey: r.Assignee().Key()}
		if _, ok := groups[gk]; !ok {
			groupOrder = append(groupOrder, gk)
		}
		groups[gk] = append(groups[gk], r)
	}

	existingPickups, err := s.pickups.ListForDate(ctx, orgID, date)
	if err != nil {
		return fmt.Errorf("pickup sync: %w", err)
	}
	existingByBookingSchedule := make(map[string]models.PickupAssignment, len(existingPickups))
	for _, p := range existingPickups {
		existingByBookingSchedule[p.BookingID+"|"+p.ScheduleID] = p
	}

	tx, err := s.pickups.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("pickup sync: begin transaction: %w", err)
	}
	defer tx.Rollback()

	desired := make(map[string]bool, len(latest))

	for _, gk := range groupOrder {
		members := groups[gk]
		entries, err := s.deriveTimes(gk.runKey, members)
		if err != nil {
			return fmt.Errorf("pickup sync: derive times for run %s: %w", gk.runKey, err)
		}

		sort.SliceStable(entries, func(i, j int) bool {
			return MustMinutes(entries[i].time) < MustMinutes(entries[j].time)
		})

		prevTime := ""
		for i, e := range entries {
			order := i + 1
			driveMinutes := 0
			if prevTime != "" {
				gap, err := Difference(prevTime, e.time)
				if err == nil {
					driveMinutes = gap - s.cfg.DefaultPickupMinutes
					if driveMinutes < 0 {
						driveMinutes = 0
					}
				}
			}
			prevTime = e.time

			scheduleID := gk.runKey
			desired[e.booking.BookingID+"|"+scheduleID] = true

			p := models.PickupAssignment{
				OrganizationID:      orgID,
				BookingID:           e.booking.BookingID,
				GuideAssignmentID:   e.booking.AssignmentID,
				ScheduleID:          scheduleID,
				PickupOrder:         order,
				EstimatedPickupTime: e.time,
				PassengerCount:      e.booking.TotalParticipants,
				Status:              models.PickupPending,
			}
			if existing, ok := existingByBookingSchedule[p.BookingID+"|"+scheduleID]; ok {
				p.ID = existing.ID
				p.Status = existing.Status
			} else {
				p.ID = uuid.NewString()
			}
			if err := s.pickups.Upsert(ctx, tx, p); err != nil {
				return fmt.Errorf("pickup sync: %w", err)
			}
			if err := s.assignments.UpdatePickupFields(ctx, tx, e.booking.AssignmentID, order, e.time, driveMinutes); err != nil {
				return fmt.Errorf("pickup sync: %w", err)
			}
		}
	}

	// Step 6: delete any pickup rows whose bookings are no longer in the
	// desired set (their confirmed assignment moved or disappeared).
	for _, p := range existingPickups {
		if !desired[p.BookingID+"|"+p.ScheduleID] {
			if err := s.pickups.DeleteByBookingAndSchedule(ctx, tx, p.BookingID, p.ScheduleID); err != nil {
				return fmt.Errorf("pickup sync: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pickup sync: commit: %w", err)
	}
	return nil
}

// deriveTimes implements spec §4.6 step 4: bookings with a known
// pickupTime anchor the order; the rest are slotted backwards from
// min(known) or the run's departure time, in pickupDuration+defaultDrive
// increments, tie-broken by createdAt ascending.
func (s *PickupSyncService) deriveTimes(runKey string, members []models.AssignmentWithBooking) ([]pickupGroupEntry, error) {
	_, _, runTime, err := ParseTourRunKey(runKey)
	if err != nil {
		return nil, err
	}

	var known []models.AssignmentWithBooking
	var unknown []models.AssignmentWithBooking
	for _, m := range members {
		if m.PickupTime != nil && *m.PickupTime != "" {
			known = append(known, m)
		} else {
			unknown = append(unknown, m)
		}
	}

	anchor := runTime
	if len(known) > 0 {
		anchor = *known[0].PickupTime
		for _, k := range known {
			if MustMinutes(*k.PickupTime) < MustMinutes(anchor) {
				anchor = *k.PickupTime
			}
		}
	}

	sort.SliceStable(unknown, func(i, j int) bool {
		return unknown[i].CreatedAt.Before(unknown[j].CreatedAt)
	})

	entries := make([]pickupGroupEntry, 0, len(members))
	for _, k := range known {
		entries = append(entries, pickupGroupEntry{booking: k, time: *k.PickupTime})
	}

	// Unknowns slot backwards from the anchor: the most-recently-inserted
	// unknown sits closest to the anchor, earlier insertions push further
	// back (spec §4.6 step 4). When no known pickup time exists at all,
	// the anchor is the run's own departure time and is unoccupied, so the
	// closest unknown takes that slot directly (S1: a lone booking with no
	// pickupTime gets calculatedPickupTime == runTime, not runTime-step).
	// When known bookings already occupy the anchor, the closest unknown
	// must step back from it instead of colliding with them.
	step := s.cfg.DefaultPickupMinutes + s.cfg.DefaultDriveMinutes
	cursor := anchor
	for i := len(unknown) - 1; i >= 0; i-- {
		if len(known) > 0 || i < len(unknown)-1 {
			shifted, err := AddMinutes(cursor, -step)
			if err != nil {
				return nil, err
			}
			cursor = shifted
		}
		entries = append(entries, pickupGroupEntry{booking: unknown[i], time: cursor})
	}

	return entries, nil
}
