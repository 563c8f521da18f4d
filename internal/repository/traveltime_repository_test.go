package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTravelTimeRepositoryLoadMatrix(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTravelTimeRepository(db)

	mock.ExpectQuery(`SELECT organization_id, from_zone_id, to_zone_id, minutes`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id", "from_zone_id", "to_zone_id", "minutes"}).
			AddRow("org-1", "zone-a", "zone-b", 25))

	rows, err := repo.LoadMatrix(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 25, rows[0].Minutes)
	require.NoError(t, mock.ExpectationsWereMet())
}
