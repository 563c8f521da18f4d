package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/repository"
)

func newTestAvailabilityService(t *testing.T) (*AvailabilityService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	repo := repository.NewAvailabilityRepository(db)
	logger := logrus.New()
	logger.SetOutput(testLogWriter{t})
	return NewAvailabilityService(repo, logger), mock
}

func TestAvailabilityServiceResolveBatchEmptyInput(t *testing.T) {
	svc, _ := newTestAvailabilityService(t)
	result := svc.ResolveBatch(context.Background(), "org-1", nil, "2026-08-02")
	assert.Empty(t, result)
}

func TestAvailabilityServiceResolveBatchOverrideWins(t *testing.T) {
	svc, mock := newTestAvailabilityService(t)

	mock.ExpectQuery(`SELECT id, guide_id, date, is_available, start_time, end_time`).
		WithArgs("2026-08-02", "gd-1", "gd-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "guide_id", "date", "is_available", "start_time", "end_time"}).
			AddRow("ov-1", "gd-1", "2026-08-02", false, nil, nil))
	mock.ExpectQuery(`SELECT id, guide_id, day_of_week, start_time, end_time, is_available`).
		WithArgs(0, "gd-1", "gd-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "guide_id", "day_of_week", "start_time", "end_time", "is_available"}).
			AddRow("wa-1", "gd-1", 0, "08:00", "18:00", true).
			AddRow("wa-2", "gd-2", 0, "09:00", "17:00", true))

	result := svc.ResolveBatch(context.Background(), "org-1", []string{"gd-1", "gd-2"}, "2026-08-02")
	require.Contains(t, result, "gd-1")
	assert.False(t, result["gd-1"].IsAvailable, "override marks gd-1 unavailable even though weekly says otherwise")
	assert.True(t, result["gd-2"].IsAvailable)
	assert.Equal(t, "09:00", result["gd-2"].StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityServiceResolveBatchMissingGuideStaysUnavailable(t *testing.T) {
	svc, mock := newTestAvailabilityService(t)

	mock.ExpectQuery(`SELECT id, guide_id, date, is_available, start_time, end_time`).
		WithArgs("2026-08-02", "gd-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "guide_id", "date", "is_available", "start_time", "end_time"}))
	mock.ExpectQuery(`SELECT id, guide_id, day_of_week, start_time, end_time, is_available`).
		WithArgs(0, "gd-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "guide_id", "day_of_week", "start_time", "end_time", "is_available"}))

	result := svc.ResolveBatch(context.Background(), "org-1", []string{"gd-1"}, "2026-08-02")
	assert.False(t, result["gd-1"].IsAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityServiceResolveBatchDegradesOnReadError(t *testing.T) {
	svc, mock := newTestAvailabilityService(t)

	mock.ExpectQuery(`SELECT id, guide_id, date, is_available, start_time, end_time`).
		WithArgs("2026-08-02", "gd-1").
		WillReturnError(assert.AnError)

	result := svc.ResolveBatch(context.Background(), "org-1", []string{"gd-1"}, "2026-08-02")
	assert.False(t, result["gd-1"].IsAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}
