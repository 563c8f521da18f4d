package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/models"
)

var pickupColumns = []string{
	"id", "organization_id", "booking_id", "guide_assignment_id", "schedule_id",
	"pickup_order", "estimated_pickup_time", "passenger_count", "status",
}

func TestPickupRepositoryListForDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPickupRepository(db)

	mock.ExpectQuery(`SELECT id, organization_id, booking_id, guide_assignment_id, schedule_id`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(pickupColumns).
			AddRow("pk-1", "org-1", "bk-1", "as-1", "tour-1|2026-07-31|09:00", 1, "08:45", 2, "pending"))

	rows, err := repo.ListForDate(context.Background(), "org-1", "2026-07-31")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PickupAssignmentStatus("pending"), rows[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPickupRepositoryUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPickupRepository(db)

	p := models.PickupAssignment{
		ID:                  "pk-1",
		OrganizationID:      "org-1",
		BookingID:           "bk-1",
		GuideAssignmentID:   "as-1",
		ScheduleID:          "tour-1|2026-07-31|09:00",
		PickupOrder:         1,
		EstimatedPickupTime: "08:45",
		PassengerCount:      2,
		Status:              "pending",
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO pickup_assignments`).
		WithArgs(p.ID, p.OrganizationID, p.BookingID, p.GuideAssignmentID, p.ScheduleID,
			p.PickupOrder, p.EstimatedPickupTime, p.PassengerCount, p.Status).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	err = repo.Upsert(context.Background(), tx, p)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPickupRepositoryDeleteByBookingAndSchedule(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPickupRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pickup_assignments WHERE booking_id = \$1 AND schedule_id = \$2`).
		WithArgs("bk-1", "tour-1|2026-07-31|09:00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	err = repo.DeleteByBookingAndSchedule(context.Background(), tx, "bk-1", "tour-1|2026-07-31|09:00")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
