package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// AvailabilityService resolves per-guide availability for a date from the
// weekly pattern plus a single dated override (spec §4.2, C3).
type AvailabilityService struct {
	repo   *repository.AvailabilityRepository
	logger *logrus.Logger
}

func NewAvailabilityService(repo *repository.AvailabilityRepository, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{repo: repo, logger: logger}
}

// ResolveBatch resolves availability for every guide in guideIDs on date
// in exactly two queries, merging per guide. Missing guides resolve to
// unavailable. On any read failure it degrades to "every guide
// unavailable" and logs, rather than risk an incorrect assignment (spec
// §4.2 last paragraph).
func (s *AvailabilityService) ResolveBatch(ctx context.Context, orgID string, guideIDs []string, date string) map[string]models.Availability {
	result := make(map[string]models.Availability, len(guideIDs))
	for _, id := range guideIDs {
		result[id] = models.Availability{GuideID: id, IsAvailable: false}
	}
	if len(guideIDs) == 0 {
		return result
	}

	overrides, err := s.repo.GetOverridesForGuides(ctx, guideIDs, date)
	if err != nil {
		s.logDegraded(orgID, date, err)
		return result
	}

	dow, err := DayOfWeek(date)
	if err != nil {
		s.logDegraded(orgID, date, err)
		return result
	}

	weekly, err := s.repo.GetWeeklyForGuides(ctx, guideIDs, dow)
	if err != nil {
		s.logDegraded(orgID, date, err)
		return result
	}

	overrideByGuide := make(map[string]models.AvailabilityOverride, len(overrides))
	for _, o := range overrides {
		overrideByGuide[o.GuideID] = o
	}

	// GetWeeklyForGuides orders by (guide_id, start_time ASC); keep only
	// the first row seen per guide — the earliest-start row (spec §4.2
	// step 2, §3 weekly-availability tie-break).
	earliestWeekly := make(map[string]models.WeeklyAvailability, len(weekly))
	for _, w := range weekly {
		if _, seen := earliestWeekly[w.GuideID]; !seen {
			earliestWeekly[w.GuideID] = w
		}
	}

	for _, id := range guideIDs {
		if o, ok := overrideByGuide[id]; ok {
			av := models.Availability{GuideID: id, IsAvailable: o.IsAvailable}
			if o.StartTime != nil {
				av.StartTime = *o.StartTime
			}
			if o.EndTime != nil {
				av.EndTime = *o.EndTime
			}
			result[id] = av
			continue
		}
		if w, ok := earliestWeekly[id]; ok {
			result[id] = models.Availability{
				GuideID:     id,
				IsAvailable: w.IsAvailable,
				StartTime:   w.StartTime,
				EndTime:     w.EndTime,
			}
			continue
		}
		// no override, no weekly row: stays unavailable (already seeded)
	}

	return result
}

func (s *AvailabilityService) logDegraded(orgID, date string, err error) {
	s.logger.WithFields(logrus.Fields{
		"organization_id": orgID,
		"date":            date,
		"error":           err,
	}).Warn("availability resolution degraded: marking all guides unavailable")
}
