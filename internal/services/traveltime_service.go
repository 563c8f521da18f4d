package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

// TravelTimeService loads the zone x zone minutes table for a tenant and
// answers lookups against it, defaulting missing pairs (spec §4, C2).
type TravelTimeService struct {
	repo   *repository.TravelTimeRepository
	logger *logrus.Logger
}

func NewTravelTimeService(repo *repository.TravelTimeRepository, logger *logrus.Logger) *TravelTimeService {
	return &TravelTimeService{repo: repo, logger: logger}
}

// Matrix is the in-memory lookup C7 scores against for the lifetime of a
// single optimize() call. No in-process caches outlive a call (spec §5).
type Matrix struct {
	minutes map[string]int
}

func (m Matrix) key(from, to string) string { return from + "->" + to }

// Minutes returns the directed drive time between two zones, defaulting
// to 0 for identity pairs and DefaultDriveMinutes for anything missing.
func (m Matrix) Minutes(from, to string) int {
	if from == "" || to == "" {
		return models.DefaultDriveMinutes
	}
	if from == to {
		return 0
	}
	if v, ok := m.minutes[m.key(from, to)]; ok {
		return v
	}
	return models.DefaultDriveMinutes
}

// LoadMatrix builds a Matrix for the organization, for C7 to consult.
func (s *TravelTimeService) LoadMatrix(ctx context.Context, orgID string) (Matrix, error) {
	rows, err := s.repo.LoadMatrix(ctx, orgID)
	if err != nil {
		return Matrix{}, fmt.Errorf("load travel time matrix: %w", err)
	}
	m := Matrix{minutes: make(map[string]int, len(rows))}
	for _, r := range rows {
		m.minutes[m.key(r.FromZoneID, r.ToZoneID)] = r.Minutes
	}
	return m, nil
}
