package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/models"
)

var assignmentViewColumns = []string{
	"assignment_id", "booking_id", "guide_id", "outsourced_guide_name",
	"assigned_at", "pickup_order", "calculated_pickup_time", "drive_time_minutes",
	"tour_id", "booking_date", "booking_time", "pickup_time", "total_participants",
	"experience_mode", "created_at",
}

var guideAssignmentColumns = []string{
	"id", "organization_id", "booking_id", "guide_id", "outsourced_guide_name", "outsourced_contact",
	"status", "assigned_at", "confirmed_at", "pickup_order", "calculated_pickup_time", "drive_time_minutes",
}

func TestAssignmentRepositoryListConfirmedForDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(db)
	now := time.Now()
	guideID := "gd-1"

	mock.ExpectQuery(`SELECT ga.id AS assignment_id`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(assignmentViewColumns).
			AddRow("as-1", "bk-1", &guideID, nil, now, nil, nil, nil,
				"tour-1", "2026-07-31", "09:00", nil, 2, nil, now))

	rows, err := repo.ListConfirmedForDate(context.Background(), "org-1", "2026-07-31")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "gd-1", rows[0].Assignee().InternalGuideID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryGetConfirmedByBookingIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(db)
	now := time.Now()
	guideID := "gd-1"

	t.Run("Empty input short-circuits", func(t *testing.T) {
		result, err := repo.GetConfirmedByBookingIDs(context.Background(), "org-1", nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("Keyed by booking id", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, organization_id, booking_id`).
			WithArgs("org-1", "bk-1").
			WillReturnRows(sqlmock.NewRows(guideAssignmentColumns).
				AddRow("as-1", "org-1", "bk-1", &guideID, nil, nil, "confirmed", now, &now, nil, nil, nil))

		result, err := repo.GetConfirmedByBookingIDs(context.Background(), "org-1", []string{"bk-1"})
		require.NoError(t, err)
		require.Contains(t, result, "bk-1")
		assert.Equal(t, models.AssignmentConfirmed, result["bk-1"].Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAssignmentRepositoryInsertConfirmed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(db)
	now := time.Now()
	guideID := "gd-1"

	a := models.GuideAssignment{
		ID:             "as-1",
		OrganizationID: "org-1",
		BookingID:      "bk-1",
		GuideID:        &guideID,
		Status:         models.AssignmentConfirmed,
		AssignedAt:     now,
	}

	mock.ExpectExec(`DELETE FROM guide_assignments`).
		WithArgs("org-1", "bk-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO guide_assignments`).
		WithArgs("as-1", "org-1", "bk-1", &guideID, a.OutsourcedGuideName, a.OutsourcedContact,
			now, a.PickupOrder, a.CalculatedPickupTime, a.DriveTimeMinutes).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertConfirmed(context.Background(), nil, a)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteConfirmedForBookings(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(db)

	t.Run("Empty input is a no-op", func(t *testing.T) {
		err := repo.DeleteConfirmedForBookings(context.Background(), nil, "org-1", nil)
		require.NoError(t, err)
	})

	t.Run("Deletes matching rows", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM guide_assignments WHERE organization_id = \$1 AND booking_id IN \(\$2\)`).
			WithArgs("org-1", "bk-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DeleteConfirmedForBookings(context.Background(), nil, "org-1", []string{"bk-1"})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAssignmentRepositoryUpdatePickupFields(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(`UPDATE guide_assignments`).
		WithArgs(2, "09:10", 15, "as-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePickupFields(context.Background(), nil, "as-1", 2, "09:10", 15)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUpdateCalculatedPickupTime(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(`UPDATE guide_assignments SET calculated_pickup_time`).
		WithArgs("09:20", "bk-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateCalculatedPickupTime(context.Background(), nil, "bk-1", "09:20")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
