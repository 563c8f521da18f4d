package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// TimelineService reconstructs per-guide ordered segments for a date
// (spec §4.9, C9): one GuideTimeline per available guide — whether or not
// they carry a confirmed assignment — plus one synthetic timeline per
// distinct outsourced guide name bound to the date.
type TimelineService struct {
	tourRuns     *TourRunService
	guides       *repository.GuideRepository
	assignments  *repository.AssignmentRepository
	pickups      *repository.PickupRepository
	availability *AvailabilityService
	logger       *logrus.Logger
}

func NewTimelineService(
	tourRuns *TourRunService,
	guides *repository.GuideRepository,
	assignments *repository.AssignmentRepository,
	pickups *repository.PickupRepository,
	availability *AvailabilityService,
	logger *logrus.Logger,
) *TimelineService {
	return &TimelineService{
		tourRuns:     tourRuns,
		guides:       guides,
		assignments:  assignments,
		pickups:      pickups,
		availability: availability,
		logger:       logger,
	}
}

const outsourcedKeyPrefix = "outsourced:"

// runAssignment bundles one guide's bookings within one run, the data
// BuildTimelines needs to walk spec §4.9 step 2.
type runAssignment struct {
	run      models.TourRun
	bookings []models.AssignmentWithBooking
}

// BuildTimelines produces the day's guide timelines (spec §6
// getGuideTimelines(date)).
func (s *TimelineService) BuildTimelines(ctx context.Context, orgID, date string) ([]models.GuideTimeline, error) {
	runs, err := s.tourRuns.BuildRuns(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("build timelines: %w", err)
	}
	runsByKey := make(map[string]models.TourRun, len(runs))
	for _, r := range runs {
		runsByKey[r.Key] = r
	}

	assignmentRows, err := s.assignments.ListConfirmedForDate(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("build timelines: %w", err)
	}
	pickupRows, err := s.pickups.ListForDate(ctx, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("build timelines: %w", err)
	}
	pickupByBookingSchedule := make(map[string]models.PickupAssignment, len(pickupRows))
	for _, p := range pickupRows {
		pickupByBookingSchedule[p.BookingID+"|"+p.ScheduleID] = p
	}

	// Group confirmed bookings by (effectiveGuideKey, tourRunKey).
	byGuide := make(map[string]map[string]*runAssignment)
	assignedKeys := make(map[string]bool)
	for _, row := range assignmentRows {
		runKey := TourRunKey(row.TourID, row.BookingDate, row.BookingTime)
		run, ok := runsByKey[runKey]
		if !ok {
			continue
		}
		guideKey := row.Assignee().Key()
		runs, ok := byGuide[guideKey]
		if !ok {
			runs = make(map[string]*runAssignment)
			byGuide[guideKey] = runs
		}
		assignedKeys[guideKey] = true
		ra, ok := runs[runKey]
		if !ok {
			ra = &runAssignment{run: run}
			runs[runKey] = ra
		}
		ra.bookings = append(ra.bookings, row)
	}

	activeGuides, err := s.guides.ListActive(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("build timelines: %w", err)
	}
	internalIDs := make([]string, 0, len(activeGuides))
	for _, g := range activeGuides {
		internalIDs = append(internalIDs, g.ID)
	}
	availByGuide := s.availability.ResolveBatch(ctx, orgID, internalIDs, date)

	// Seed the guide set from every available active guide (spec §4.9:
	// "one GuideTimeline per available guide") rather than from assigned
	// bookings alone — a free guide still gets an idle-only timeline.
	// Union in any key only reachable through an assignment (outsourced
	// guides carry no availability row at all).
	guideSet := make(map[string]bool, len(internalIDs)+len(assignedKeys))
	for _, id := range internalIDs {
		if av, ok := availByGuide[id]; ok && av.IsAvailable {
			guideSet[id] = true
		}
	}
	for k := range assignedKeys {
		guideSet[k] = true
	}
	guideKeys := make([]string, 0, len(guideSet))
	for k := range guideSet {
		guideKeys = append(guideKeys, k)
	}
	sort.Strings(guideKeys)

	timelines := make([]models.GuideTimeline, 0, len(guideKeys))
	for _, key := range guideKeys {
		runsForGuide := byGuide[key]
		sortedRuns := make([]*runAssignment, 0, len(runsForGuide))
		for _, ra := range runsForGuide {
			sortedRuns = append(sortedRuns, ra)
		}
		sort.SliceStable(sortedRuns, func(i, j int) bool {
			return MustMinutes(sortedRuns[i].run.Time) < MustMinutes(sortedRuns[j].run.Time)
		})

		tl := s.buildOne(key, date, sortedRuns, availByGuide, pickupByBookingSchedule)
		timelines = append(timelines, tl)
	}

	return timelines, nil
}

func (s *TimelineService) buildOne(
	guideKey, date string,
	runs []*runAssignment,
	availByGuide map[string]models.Availability,
	pickupByBookingSchedule map[string]models.PickupAssignment,
) models.GuideTimeline {
	tl := models.GuideTimeline{Date: date}
	if len(runs) > 0 {
		tl.Date = runs[0].run.Date
	}

	isOutsourced := strings.HasPrefix(guideKey, outsourcedKeyPrefix)
	if isOutsourced {
		tl.OutsourcedName = strings.TrimPrefix(guideKey, outsourcedKeyPrefix)
	} else {
		tl.GuideID = guideKey
	}

	availableFrom, availableTo := s.availabilityWindow(guideKey, isOutsourced, runs, availByGuide)
	tl.AvailableFrom = availableFrom
	tl.AvailableTo = availableTo

	cursor := availableFrom
	workActive := false
	workMinutes := 0
	driveMinutes := 0
	totalGuests := 0
	var segments []models.TimelineSegment

	emitIdle := func(from, to string) {
		if MustMinutes(to) > MustMinutes(from) {
			segments = append(segments, models.TimelineSegment{Type: models.SegmentIdle, Start: from, End: to})
		}
	}

	for _, ra := range runs {
		run := ra.run
		tourEnd, _ := AddMinutes(run.Time, run.DurationMinutes)
		confidence := confidenceForRun(run)

		pickups := s.orderedPickups(ra, pickupByBookingSchedule)

		if len(pickups) == 0 {
			emitIdle(cursor, run.Time)
			share := models.GuestsPerGuideShare(run.TotalGuests, maxInt(run.GuidesAssigned, 1))
			segments = append(segments, models.TimelineSegment{
				Type: models.SegmentTour, Start: run.Time, End: tourEnd,
				TourRunKey: run.Key, GuestCount: share, Confidence: confidence,
			})
			totalGuests += share
			workMinutes += MustMinutes(tourEnd) - MustMinutes(run.Time)
			cursor = tourEnd
			workActive = true
			continue
		}

		firstPickupTime := pickups[0].EstimatedPickupTime
		emitIdle(cursor, firstPickupTime)
		cursor = firstPickupTime

		lastPickupEnd := cursor
		for _, p := range pickups {
			if MustMinutes(p.EstimatedPickupTime) > MustMinutes(cursor) {
				if workActive {
					segments = append(segments, models.TimelineSegment{
						Type: models.SegmentDrive, Start: cursor, End: p.EstimatedPickupTime,
						TourRunKey: run.Key, Confidence: confidence,
					})
					driveMinutes += MustMinutes(p.EstimatedPickupTime) - MustMinutes(cursor)
					workMinutes += MustMinutes(p.EstimatedPickupTime) - MustMinutes(cursor)
				} else {
					emitIdle(cursor, p.EstimatedPickupTime)
				}
			}
			pickupEnd, _ := AddMinutes(p.EstimatedPickupTime, models.DefaultPickupMinutes)
			segments = append(segments, models.TimelineSegment{
				Type: models.SegmentPickup, Start: p.EstimatedPickupTime, End: pickupEnd,
				TourRunKey: run.Key, BookingID: p.BookingID, GuestCount: p.PassengerCount, Confidence: confidence,
			})
			workMinutes += MustMinutes(pickupEnd) - MustMinutes(p.EstimatedPickupTime)
			totalGuests += p.PassengerCount
			cursor = pickupEnd
			lastPickupEnd = pickupEnd
			workActive = true
		}

		if MustMinutes(run.Time) > MustMinutes(lastPickupEnd) {
			segments = append(segments, models.TimelineSegment{
				Type: models.SegmentDrive, Start: lastPickupEnd, End: run.Time,
				TourRunKey: run.Key, Confidence: confidence,
			})
			driveMinutes += MustMinutes(run.Time) - MustMinutes(lastPickupEnd)
			workMinutes += MustMinutes(run.Time) - MustMinutes(lastPickupEnd)
		}
		segments = append(segments, models.TimelineSegment{
			Type: models.SegmentTour, Start: run.Time, End: tourEnd,
			TourRunKey: run.Key, Confidence: confidence,
		})
		workMinutes += MustMinutes(tourEnd) - MustMinutes(run.Time)
		cursor = tourEnd
		workActive = true
	}

	emitIdle(cursor, availableTo)

	tl.Segments = segments
	tl.TotalDriveMinutes = driveMinutes
	tl.TotalGuests = totalGuests
	availableMinutes := MustMinutes(availableTo) - MustMinutes(availableFrom)
	tl.UtilizationPct = percentRounded(workMinutes, availableMinutes)

	return tl
}

// orderedPickups returns the pickup-assignment rows for this guide's run,
// sorted by pickupOrder (spec §4.9 step 2). A booking with no pickup row
// yet (pickup sync hasn't run) is skipped — its guest share is folded
// into the no-pickup tour-only branch only when the whole run has none.
func (s *TimelineService) orderedPickups(ra *runAssignment, pickupByBookingSchedule map[string]models.PickupAssignment) []models.PickupAssignment {
	var out []models.PickupAssignment
	for _, b := range ra.bookings {
		if p, ok := pickupByBookingSchedule[b.BookingID+"|"+ra.run.Key]; ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PickupOrder < out[j].PickupOrder })
	return out
}

// availabilityWindow resolves the [from, to) bound a guide's timeline is
// built over. Internal guides use their resolved Availability; an
// outsourced guide carries no availability row, so its window is the
// span of the runs it was actually assigned to (spec §4.9 is silent on
// outsourced windows — this is the natural fallback, matching how an
// outsourced guide is only ever "available" for the runs they cover).
func (s *TimelineService) availabilityWindow(
	guideKey string,
	isOutsourced bool,
	runs []*runAssignment,
	availByGuide map[string]models.Availability,
) (string, string) {
	if !isOutsourced {
		if av, ok := availByGuide[guideKey]; ok && av.IsAvailable {
			return av.StartTime, av.EndTime
		}
	}
	if len(runs) == 0 {
		return "00:00", "00:00"
	}
	from := runs[0].run.Time
	to, _ := AddMinutes(runs[0].run.Time, runs[0].run.DurationMinutes)
	for _, ra := range runs[1:] {
		end, _ := AddMinutes(ra.run.Time, ra.run.DurationMinutes)
		if MustMinutes(end) > MustMinutes(to) {
			to = end
		}
	}
	return from, to
}

// confidenceForRun implements spec §4.9 step 5.
func confidenceForRun(run models.TourRun) models.Confidence {
	switch {
	case run.Status == models.TourRunUnassigned:
		return models.ConfidenceProblem
	case run.Status != models.TourRunAssigned:
		return models.ConfidenceReview
	case run.GuestsPerGuide > 8:
		return models.ConfidenceReview
	default:
		return models.ConfidenceOptimal
	}
}

func percentRounded(numerator, denominator int) int {
	if denominator <= 0 {
		return 0
	}
	pct := (100*numerator + denominator/2) / denominator
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
