package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/direrr"
)

var tourColumns = []string{
	"id", "organization_id", "name", "duration_minutes", "guests_per_guide", "created_at", "updated_at",
}

func TestTourRepositoryGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTourRepository(db)
	now := time.Now()

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, organization_id, name, duration_minutes, guests_per_guide`).
			WithArgs("tour-1", "org-1").
			WillReturnRows(sqlmock.NewRows(tourColumns).
				AddRow("tour-1", "org-1", "City Walk", 180, 8, now, now))

		tour, err := repo.GetByID(context.Background(), "org-1", "tour-1")
		require.NoError(t, err)
		assert.Equal(t, "City Walk", tour.Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, organization_id, name, duration_minutes, guests_per_guide`).
			WithArgs("tour-missing", "org-1").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), "org-1", "tour-missing")
		assert.True(t, direrr.As(err, direrr.KindNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTourRepositoryGetByIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTourRepository(db)
	now := time.Now()

	t.Run("Empty input short-circuits", func(t *testing.T) {
		result, err := repo.GetByIDs(context.Background(), "org-1", nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("Batches by id", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, organization_id, name, duration_minutes, guests_per_guide`).
			WithArgs("org-1", "tour-1").
			WillReturnRows(sqlmock.NewRows(tourColumns).
				AddRow("tour-1", "org-1", "City Walk", 180, 8, now, now))

		result, err := repo.GetByIDs(context.Background(), "org-1", []string{"tour-1"})
		require.NoError(t, err)
		require.Contains(t, result, "tour-1")
		assert.Equal(t, 8, result["tour-1"].GuestsPerGuide)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
