package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var bookingColumns = []string{
	"id", "organization_id", "tour_id", "booking_date", "booking_time", "total_participants",
	"status", "pickup_zone_id", "pickup_location", "pickup_time", "experience_mode",
	"customer_id", "created_at", "updated_at",
}

func TestBookingRepositoryListDispatchEligibleForDate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs("org-1", "2026-07-31").
			WillReturnRows(sqlmock.NewRows(bookingColumns).
				AddRow("bk-1", "org-1", "tour-1", "2026-07-31", "09:00", 2,
					"confirmed", nil, "Hotel A", nil, nil, "cust-1", now, now))

		bookings, err := repo.ListDispatchEligibleForDate(context.Background(), "org-1", "2026-07-31")
		require.NoError(t, err)
		require.Len(t, bookings, 1)
		assert.Equal(t, "bk-1", bookings[0].ID)
		assert.Equal(t, models.BookingConfirmed, bookings[0].Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs("org-1", "2026-07-31").
			WillReturnError(fmt.Errorf("connection refused"))

		_, err := repo.ListDispatchEligibleForDate(context.Background(), "org-1", "2026-07-31")
		assert.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs("bk-1", "org-1").
			WillReturnRows(sqlmock.NewRows(bookingColumns).
				AddRow("bk-1", "org-1", "tour-1", "2026-07-31", "09:00", 2,
					"pending", nil, "Hotel A", nil, nil, "cust-1", now, now))

		b, err := repo.GetByID(context.Background(), "org-1", "bk-1")
		require.NoError(t, err)
		assert.Equal(t, "tour-1", b.TourID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE id`).
			WithArgs("bk-missing", "org-1").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), "org-1", "bk-missing")
		assert.True(t, direrr.As(err, direrr.KindNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryGetByIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	t.Run("Empty input short-circuits", func(t *testing.T) {
		result, err := repo.GetByIDs(context.Background(), "org-1", nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("Batches by id", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE organization_id = \$1 AND id IN \(\$2, \$3\)`).
			WithArgs("org-1", "bk-1", "bk-2").
			WillReturnRows(sqlmock.NewRows(bookingColumns).
				AddRow("bk-1", "org-1", "tour-1", "2026-07-31", "09:00", 2,
					"pending", nil, "Hotel A", nil, nil, "cust-1", now, now).
				AddRow("bk-2", "org-1", "tour-1", "2026-07-31", "09:30", 4,
					"confirmed", nil, "Hotel B", nil, nil, "cust-2", now, now))

		result, err := repo.GetByIDs(context.Background(), "org-1", []string{"bk-1", "bk-2"})
		require.NoError(t, err)
		assert.Len(t, result, 2)
		assert.Equal(t, "tour-1", result["bk-1"].TourID)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryUpdateSchedule(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Success", func(t *testing.T) {
		pickup := "08:45"
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs("09:00", &pickup, "bk-1", "org-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateSchedule(context.Background(), nil, "org-1", "bk-1", "09:00", &pickup)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs("09:00", (*string)(nil), "bk-missing", "org-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateSchedule(context.Background(), nil, "org-1", "bk-missing", "09:00", nil)
		assert.True(t, direrr.As(err, direrr.KindNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryUpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Empty input is a no-op", func(t *testing.T) {
		err := repo.UpdateStatus(context.Background(), nil, "org-1", nil, models.BookingCancelled)
		require.NoError(t, err)
	})

	t.Run("Updates matching rows", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings SET status`).
			WithArgs("cancelled", "org-1", "bk-1", "bk-2").
			WillReturnResult(sqlmock.NewResult(0, 2))

		err := repo.UpdateStatus(context.Background(), nil, "org-1", []string{"bk-1", "bk-2"}, models.BookingCancelled)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepositoryCountCompletedByCustomers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Empty input short-circuits", func(t *testing.T) {
		result, err := repo.CountCompletedByCustomers(context.Background(), "org-1", nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("Groups by customer", func(t *testing.T) {
		mock.ExpectQuery(`SELECT customer_id, COUNT\(\*\)`).
			WithArgs("org-1", "cust-1").
			WillReturnRows(sqlmock.NewRows([]string{"customer_id", "completed_count"}).
				AddRow("cust-1", 3))

		result, err := repo.CountCompletedByCustomers(context.Background(), "org-1", []string{"cust-1"})
		require.NoError(t, err)
		assert.Equal(t, 3, result["cust-1"])
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
