package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/models"
)

func TestAvailabilityRepositoryGetOverridesForGuides(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAvailabilityRepository(db)

	t.Run("Empty input short-circuits", func(t *testing.T) {
		rows, err := repo.GetOverridesForGuides(context.Background(), nil, "2026-07-31")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Returns override rows", func(t *testing.T) {
		start := "09:00"
		end := "17:00"
		mock.ExpectQuery(`SELECT id, guide_id, date, is_available, start_time, end_time`).
			WithArgs("2026-07-31", "gd-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "guide_id", "date", "is_available", "start_time", "end_time"}).
				AddRow("ov-1", "gd-1", "2026-07-31", true, &start, &end))

		rows, err := repo.GetOverridesForGuides(context.Background(), []string{"gd-1"}, "2026-07-31")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].IsAvailable)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAvailabilityRepositoryGetWeeklyForGuides(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAvailabilityRepository(db)

	t.Run("Empty input short-circuits", func(t *testing.T) {
		rows, err := repo.GetWeeklyForGuides(context.Background(), nil, 0)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Returns weekly pattern rows", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, guide_id, day_of_week, start_time, end_time, is_available`).
			WithArgs(0, "gd-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "guide_id", "day_of_week", "start_time", "end_time", "is_available"}).
				AddRow("wa-1", "gd-1", 0, "08:00", "18:00", true))

		rows, err := repo.GetWeeklyForGuides(context.Background(), []string{"gd-1"}, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "08:00", rows[0].StartTime)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAvailabilityRepositoryUpsertOverride(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAvailabilityRepository(db)

	start := "09:00"
	end := "17:00"
	o := models.AvailabilityOverride{
		ID:          "ov-1",
		GuideID:     "gd-1",
		Date:        "2026-07-31",
		IsAvailable: true,
		StartTime:   &start,
		EndTime:     &end,
	}

	mock.ExpectExec(`INSERT INTO availability_overrides`).
		WithArgs(o.ID, o.GuideID, o.Date, o.IsAvailable, &start, &end).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertOverride(context.Background(), o)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
