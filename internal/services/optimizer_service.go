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

// OptimizerService is the deterministic greedy assigner (spec §4.5, C7).
// Ties in scoring break by guideId ascending; ties between runs break by
// tourRunKey ascending. Identical input data always yields identical
// output (invariant 8).
type OptimizerService struct {
	guideRepo         *repository.GuideRepository
	qualificationRepo *repository.QualificationRepository
	travelTime        *TravelTimeService
	availability      *AvailabilityService
	cfg               config.DispatchConfig
	logger            *logrus.Logger
}

func NewOptimizerService(
	guideRepo *repository.GuideRepository,
	qualificationRepo *repository.QualificationRepository,
	travelTime *TravelTimeService,
	availability *AvailabilityService,
	cfg config.DispatchConfig,
	logger *logrus.Logger,
) *OptimizerService {
	return &OptimizerService{
		guideRepo:         guideRepo,
		qualificationRepo: qualificationRepo,
		travelTime:        travelTime,
		availability:      availability,
		cfg:               cfg,
		logger:            logger,
	}
}

// guideState tracks the mutable optimization state for one guide across
// the whole pass: its growing schedule, workload, and last drop-off zone
// (for the travel-time scoring bonus).
type guideState struct {
	guide          models.Guide
	availability   models.Availability
	schedule       []models.ScheduleInterval
	assignedCount  int
	lastRunEnd     string
	lastDropZoneID *string
}

// Optimize runs the greedy pass over every understaffed run in allRuns
// (spec §4.5 steps 1-9). allRuns must be the full day's runs so existing
// confirmed schedules can be reconstructed for overlap/workload checks.
func (s *OptimizerService) Optimize(ctx context.Context, orgID, date string, allRuns []models.TourRun) (models.OptimizationResult, error) {
	guides, err := s.guideRepo.ListActive(ctx, orgID)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	tourIDs := make([]string, 0, len(allRuns))
	seenTour := make(map[string]bool)
	for _, r := range allRuns {
		if !seenTour[r.TourID] {
			seenTour[r.TourID] = true
			tourIDs = append(tourIDs, r.TourID)
		}
	}
	qualifications, err := s.qualificationRepo.QualifiedGuideIDsForTours(ctx, tourIDs)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	guideIDs := make([]string, 0, len(guides))
	for _, g := range guides {
		guideIDs = append(guideIDs, g.ID)
	}
	availByGuide := s.availability.ResolveBatch(ctx, orgID, guideIDs, date)

	matrix, err := s.travelTime.LoadMatrix(ctx, orgID)
	if err != nil {
		return models.OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	states := make(map[string]*guideState, len(guides))
	for _, g := range guides {
		states[g.ID] = &guideState{guide: g, availability: availByGuide[g.ID]}
	}

	// Seed existing schedules from every run's current assignees so
	// overlap/workload checks see today's already-confirmed commitments.
	for _, r := range allRuns {
		end, _ := AddMinutes(r.Time, r.DurationMinutes)
		for _, key := range r.AssigneeKeys {
			st, ok := states[key]
			if !ok {
				continue // outsourced or inactive guide: not a future candidate anyway
			}
			st.schedule = append(st.schedule, models.ScheduleInterval{TourRunKey: r.Key, Start: r.Time, End: end})
			st.assignedCount++
			if st.lastRunEnd == "" || MustMinutes(end) > MustMinutes(st.lastRunEnd) {
				st.lastRunEnd = end
				st.lastDropZoneID = r.PrimaryZoneID
			}
		}
	}

	// Step 1-2: candidate runs, sorted by (time asc, totalGuests desc),
	// tie-broken by tourRunKey ascending.
	var candidates []models.TourRun
	for _, r := range allRuns {
		if !r.Staffed() {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if MustMinutes(a.Time) != MustMinutes(b.Time) {
			return MustMinutes(a.Time) < MustMinutes(b.Time)
		}
		if a.TotalGuests != b.TotalGuests {
			return a.TotalGuests > b.TotalGuests
		}
		return a.Key < b.Key
	})

	result := models.OptimizationResult{}

	for _, run := range candidates {
		outcomes, warnings := s.optimizeRun(orgID, date, run, states, matrix, qualifications[run.TourID])
		result.Assignments = append(result.Assignments, outcomes...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	totalDrive := 0
	for _, a := range result.Assignments {
		totalDrive += a.DriveTimeMinutes
	}
	result.TotalDriveMinutes = totalDrive

	guidesNeeded, guidesAssigned := 0, 0
	for _, r := range allRuns {
		guidesNeeded += r.GuidesNeeded
	}
	assignedByRun := make(map[string]map[string]bool)
	for _, r := range allRuns {
		set := make(map[string]bool, len(r.AssigneeKeys))
		for _, k := range r.AssigneeKeys {
			set[k] = true
		}
		assignedByRun[r.Key] = set
	}
	for _, a := range result.Assignments {
		set := assignedByRun[a.TourRunKey]
		if set == nil {
			set = make(map[string]bool)
			assignedByRun[a.TourRunKey] = set
		}
		set[a.Assignee.Key()] = true
	}
	for _, set := range assignedByRun {
		guidesAssigned += len(set)
	}
	result.Efficiency = efficiencyScore(guidesAssigned, guidesNeeded)

	return result, nil
}

func (s *OptimizerService) optimizeRun(
	orgID, date string,
	run models.TourRun,
	states map[string]*guideState,
	matrix Matrix,
	qualifiedGuideIDs map[string]bool,
) ([]models.AssignmentOutcome, []models.Warning) {
	runEnd, _ := AddMinutes(run.Time, run.DurationMinutes)
	tourInterval := models.ScheduleInterval{TourRunKey: run.Key, Start: run.Time, End: runEnd}
	share := models.GuestsPerGuideShare(run.TotalGuests, run.GuidesNeeded)

	alreadyAssignedGuide := make(map[string]bool, len(run.AssigneeKeys))
	for _, k := range run.AssigneeKeys {
		alreadyAssignedGuide[k] = true
	}

	var qualified []*guideState
	for _, st := range allGuideStates(states) {
		if alreadyAssignedGuide[st.guide.ID] {
			continue
		}
		if qualifiedGuideIDs[st.guide.ID] {
			qualified = append(qualified, st)
		}
	}

	if len(qualified) == 0 {
		return nil, []models.Warning{s.buildWarning(orgID, date, run.Key, "", models.WarningNoQualifiedGuide,
			fmt.Sprintf("no guide is qualified for tour %s", run.TourID), states, run, qualifiedGuideIDs, run.Time, runEnd, tourInterval)}
	}

	var available []*guideState
	for _, st := range qualified {
		if isGuideFree(st, run.Time, runEnd, tourInterval) {
			available = append(available, st)
		}
	}

	if len(available) == 0 {
		return nil, []models.Warning{s.buildWarning(orgID, date, run.Key, "", models.WarningNoAvailableGuide,
			fmt.Sprintf("no guide is available for run %s", run.Key), states, run, qualifiedGuideIDs, run.Time, runEnd, tourInterval)}
	}

	var capable []*guideState
	for _, st := range available {
		if st.guide.EffectiveCapacity() >= share {
			capable = append(capable, st)
		}
	}

	if len(capable) == 0 {
		return nil, []models.Warning{s.buildWarning(orgID, date, run.Key, "", models.WarningCapacityExceeded,
			fmt.Sprintf("no available guide has capacity for %d guests per vehicle on run %s", share, run.Key),
			states, run, qualifiedGuideIDs, run.Time, runEnd, tourInterval)}
	}

	sort.SliceStable(capable, func(i, j int) bool {
		si := s.score(capable[i], run, share, matrix)
		sj := s.score(capable[j], run, share, matrix)
		if si != sj {
			return si > sj
		}
		return capable[i].guide.ID < capable[j].guide.ID
	})

	// Step 5: only currently-unassigned bookings are up for grabs — a
	// booking already holding a confirmed assignment must not be
	// redistributed by re-optimizing a still-understaffed run (spec §4.5
	// step 5).
	var pendingBookings []models.Booking
	for _, b := range run.Bookings {
		if _, assigned := run.AssignedGuideByBooking[b.ID]; assigned {
			continue
		}
		pendingBookings = append(pendingBookings, b)
	}
	sort.SliceStable(pendingBookings, func(i, j int) bool { return pendingBookings[i].ID < pendingBookings[j].ID })

	var outcomes []models.AssignmentOutcome
	guidesFilled := 0
	idx := 0
	for _, cand := range capable {
		if guidesFilled >= run.GuidesNeeded || idx >= len(pendingBookings) {
			break
		}
		capacity := cand.guide.EffectiveCapacity()
		used := 0
		var theseBookings []models.Booking
		for idx < len(pendingBookings) {
			b := pendingBookings[idx]
			if used+b.TotalParticipants > capacity {
				break
			}
			theseBookings = append(theseBookings, b)
			used += b.TotalParticipants
			idx++
		}
		if len(theseBookings) == 0 {
			continue
		}
		for _, b := range theseBookings {
			outcomes = append(outcomes, models.AssignmentOutcome{
				BookingID:  b.ID,
				Assignee:   models.Assignee{InternalGuideID: cand.guide.ID},
				TourRunKey: run.Key,
			})
		}
		cand.schedule = append(cand.schedule, tourInterval)
		cand.assignedCount++
		cand.lastRunEnd = runEnd
		cand.lastDropZoneID = run.PrimaryZoneID
		guidesFilled++
	}

	var warnings []models.Warning
	if idx < len(pendingBookings) {
		warnings = append(warnings, s.buildWarning(orgID, date, run.Key, "", models.WarningInsufficientGuides,
			fmt.Sprintf("only %d of %d needed guides could be assigned to run %s", guidesFilled, run.GuidesNeeded, run.Key),
			states, run, qualifiedGuideIDs, run.Time, runEnd, tourInterval))
	}

	return outcomes, warnings
}

// isGuideFree implements spec §4.5 step 3 (b)/(c): available for the
// run's window and not already overlapping a committed run. Shared by the
// candidate filter and buildWarning's qualified-but-unavailable /
// unqualified-but-free classification.
func isGuideFree(st *guideState, runStart, runEnd string, tourInterval models.ScheduleInterval) bool {
	if !st.availability.IsAvailable {
		return false
	}
	if MustMinutes(st.availability.StartTime) > MustMinutes(runStart) {
		return false
	}
	if MustMinutes(st.availability.EndTime) < MustMinutes(runEnd) {
		return false
	}
	for _, iv := range st.schedule {
		if IntervalOverlaps(iv, tourInterval) {
			return false
		}
	}
	return true
}

func allGuideStates(states map[string]*guideState) []*guideState {
	out := make([]*guideState, 0, len(states))
	for _, st := range states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].guide.ID < out[j].guide.ID })
	return out
}

// score implements spec §4.5 step 4.
func (s *OptimizerService) score(st *guideState, run models.TourRun, share int, matrix Matrix) int {
	points := 50 // qualified
	points -= 10 * st.assignedCount

	headroom := st.guide.EffectiveCapacity() - share
	switch {
	case headroom >= 0 && headroom <= 2:
		points += 20
	case headroom < 0:
		points -= 30
	}

	if st.lastDropZoneID != nil && run.PrimaryZoneID != nil {
		minutes := matrix.Minutes(*st.lastDropZoneID, *run.PrimaryZoneID)
		bonus := 15 - minutes
		if bonus > 15 {
			bonus = 15
		}
		if bonus < 0 {
			bonus = 0
		}
		points += bonus
	}

	return points
}

// buildWarning assembles a Warning with up to cfg.MaxAlternativesPerWarning
// assign_guide resolutions (qualified-but-unavailable or
// unqualified-but-free guides) plus a trailing add_external resolution
// (spec §4.5 step 7).
func (s *OptimizerService) buildWarning(
	orgID, date string,
	runKey, bookingID string,
	warningType models.WarningType,
	message string,
	states map[string]*guideState,
	run models.TourRun,
	qualifiedGuideIDs map[string]bool,
	runStart, runEnd string,
	tourInterval models.ScheduleInterval,
) models.Warning {
	alreadyAssigned := make(map[string]bool, len(run.AssigneeKeys))
	for _, k := range run.AssigneeKeys {
		alreadyAssigned[k] = true
	}
	// Only two classes of alternative are actionable (spec §4.5 step 7):
	// qualified for the tour but not currently free, or free but not
	// qualified. A guide that is neither offers nothing a resolver could
	// act on.
	var alternatives []*guideState
	for _, st := range allGuideStates(states) {
		if alreadyAssigned[st.guide.ID] {
			continue
		}
		qualified := qualifiedGuideIDs[st.guide.ID]
		free := isGuideFree(st, runStart, runEnd, tourInterval)
		if qualified == free {
			continue
		}
		alternatives = append(alternatives, st)
	}

	var resolutions []models.Resolution
	count := 0
	for _, st := range alternatives {
		if count >= s.cfg.MaxAlternativesPerWarning {
			break
		}
		resolutions = append(resolutions, models.Resolution{
			Action:     models.ActionAssignGuide,
			GuideID:    st.guide.ID,
			TourRunKey: runKey,
		})
		count++
	}
	resolutions = append(resolutions, models.Resolution{
		Action:     models.ActionAddExternal,
		TourRunKey: runKey,
	})

	w := models.Warning{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Date:           date,
		Type:           warningType,
		TourRunKey:     &runKey,
		Message:     message,
		Resolutions: resolutions,
	}
	if bookingID != "" {
		w.BookingID = &bookingID
	}
	return w
}

