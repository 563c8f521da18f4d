package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualificationRepositoryQualifiedGuideIDsForTours(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewQualificationRepository(db)

	t.Run("Empty input short-circuits", func(t *testing.T) {
		result, err := repo.QualifiedGuideIDsForTours(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("Groups guide ids by tour", func(t *testing.T) {
		mock.ExpectQuery(`SELECT tour_id, guide_id`).
			WithArgs("tour-1").
			WillReturnRows(sqlmock.NewRows([]string{"tour_id", "guide_id"}).
				AddRow("tour-1", "gd-1").
				AddRow("tour-1", "gd-2"))

		result, err := repo.QualifiedGuideIDsForTours(context.Background(), []string{"tour-1"})
		require.NoError(t, err)
		require.Contains(t, result, "tour-1")
		assert.True(t, result["tour-1"]["gd-1"])
		assert.True(t, result["tour-1"]["gd-2"])
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
