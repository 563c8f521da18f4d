package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/repository"
)

func newTestTourRunService(t *testing.T) (*TourRunService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	bookings := repository.NewBookingRepository(db)
	tours := repository.NewTourRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	logger := logrus.New()
	logger.SetOutput(testLogWriter{t})
	return NewTourRunService(bookings, tours, assignments, logger), mock
}

func TestTourRunServiceBuildRunsGroupsAndOrders(t *testing.T) {
	svc, mock := newTestTourRunService(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(bookingColumns).
			AddRow("bk-1", "org-1", "tour-1", "2026-07-31", "10:00", 4,
				"confirmed", nil, "Hotel A", nil, nil, "cust-1", now, now).
			AddRow("bk-2", "org-1", "tour-1", "2026-07-31", "09:00", 6,
				"confirmed", nil, "Hotel B", nil, nil, "cust-2", now, now).
			AddRow("bk-3", "org-1", "tour-1", "2026-07-31", "09:00", 2,
				"confirmed", nil, "Hotel C", nil, nil, "cust-3", now, now))

	mock.ExpectQuery(`SELECT id, organization_id, name, duration_minutes, guests_per_guide`).
		WithArgs("org-1", "tour-1").
		WillReturnRows(sqlmock.NewRows(tourColumns).
			AddRow("tour-1", "org-1", "City Walk", 180, 8, now, now))

	mock.ExpectQuery(`SELECT id, organization_id, booking_id`).
		WithArgs("org-1", "bk-1", "bk-2", "bk-3").
		WillReturnRows(sqlmock.NewRows(guideAssignmentColumns))

	runs, err := svc.BuildRuns(context.Background(), "org-1", "2026-07-31")
	require.NoError(t, err)
	require.Len(t, runs, 2, "09:00 and 10:00 form two distinct tour runs")
	assert.Equal(t, "09:00", runs[0].Time, "runs are sorted ascending by time")
	assert.Equal(t, 8, runs[0].TotalGuests, "09:00 run merges bk-2 and bk-3")
	assert.Equal(t, 1, runs[0].GuidesNeeded, "ceil(8/8) guides needed")
	assert.Equal(t, 4, runs[1].TotalGuests)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTourRunServiceBuildRunsSkipsBookingsMissingTourOrTime(t *testing.T) {
	svc, mock := newTestTourRunService(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(bookingColumns).
			AddRow("bk-1", "org-1", "", "2026-07-31", "09:00", 2,
				"confirmed", nil, "Hotel A", nil, nil, "cust-1", now, now))

	mock.ExpectQuery(`SELECT id, organization_id, name, duration_minutes, guests_per_guide`).
		WithArgs("org-1", "").
		WillReturnRows(sqlmock.NewRows(tourColumns))

	runs, err := svc.BuildRuns(context.Background(), "org-1", "2026-07-31")
	require.NoError(t, err)
	assert.Empty(t, runs, "booking with no tour id never reaches the confirmed-assignment lookup")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTourRunServiceFirstTimeCustomers(t *testing.T) {
	svc, mock := newTestTourRunService(t)

	mock.ExpectQuery(`SELECT customer_id, COUNT\(\*\)`).
		WithArgs("org-1", "cust-1").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "completed_count"}))

	bookings := []models.Booking{{CustomerID: "cust-1"}, {CustomerID: "cust-1"}, {CustomerID: ""}}

	result, err := svc.FirstTimeCustomers(context.Background(), "org-1", bookings)
	require.NoError(t, err)
	assert.True(t, result["cust-1"])
	require.NoError(t, mock.ExpectationsWereMet())
}
