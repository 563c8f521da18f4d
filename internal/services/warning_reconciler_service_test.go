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

func newTestWarningReconciler(t *testing.T) (*WarningReconcilerService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	warnings := repository.NewWarningRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	logger := logrus.New()
	logger.SetOutput(testLogWriter{t})
	return NewWarningReconcilerService(warnings, assignments, logger), mock
}

var warningColumnsForReconciler = []string{
	"id", "organization_id", "date", "type", "tour_run_key", "booking_id", "message", "resolved", "resolved_at",
}

func TestWarningReconcilerResolvesBookingWarningOnceConfirmed(t *testing.T) {
	svc, mock := newTestWarningReconciler(t)
	bookingID := "bk-1"
	now := time.Now()
	guideID := "gd-1"

	mock.ExpectQuery(`SELECT (.+) FROM warnings`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(warningColumnsForReconciler).
			AddRow("w-1", "org-1", "2026-07-31", "no_available_guide", nil, &bookingID, "no guide", false, nil))

	mock.ExpectQuery(`SELECT id, organization_id, booking_id`).
		WithArgs("org-1", "bk-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "booking_id", "guide_id", "outsourced_guide_name", "outsourced_contact",
			"status", "assigned_at", "confirmed_at", "pickup_order", "calculated_pickup_time", "drive_time_minutes",
		}).AddRow("as-1", "org-1", "bk-1", &guideID, nil, nil, "confirmed", now, &now, nil, nil, nil))

	mock.ExpectExec(`UPDATE warnings SET resolved = true, resolved_at = NOW\(\) WHERE id`).
		WithArgs("w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := svc.Reconcile(context.Background(), "org-1", "2026-07-31", map[string]models.TourRun{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWarningReconcilerLeavesBookingWarningUnresolvedWithoutConfirmation(t *testing.T) {
	svc, mock := newTestWarningReconciler(t)
	bookingID := "bk-1"

	mock.ExpectQuery(`SELECT (.+) FROM warnings`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(warningColumnsForReconciler).
			AddRow("w-1", "org-1", "2026-07-31", "no_available_guide", nil, &bookingID, "no guide", false, nil))

	mock.ExpectQuery(`SELECT id, organization_id, booking_id`).
		WithArgs("org-1", "bk-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "booking_id", "guide_id", "outsourced_guide_name", "outsourced_contact",
			"status", "assigned_at", "confirmed_at", "pickup_order", "calculated_pickup_time", "drive_time_minutes",
		}))

	count, err := svc.Reconcile(context.Background(), "org-1", "2026-07-31", map[string]models.TourRun{})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWarningReconcilerResolvesRunWarningWhenRunAssigned(t *testing.T) {
	svc, mock := newTestWarningReconciler(t)
	runKey := "tour-1|2026-07-31|09:00"

	mock.ExpectQuery(`SELECT (.+) FROM warnings`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(warningColumnsForReconciler).
			AddRow("w-1", "org-1", "2026-07-31", "insufficient_guides", &runKey, nil, "not enough guides", false, nil))

	mock.ExpectExec(`UPDATE warnings SET resolved = true, resolved_at = NOW\(\) WHERE id`).
		WithArgs("w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	runs := map[string]models.TourRun{
		runKey: {Key: runKey, Status: models.TourRunAssigned},
	}

	count, err := svc.Reconcile(context.Background(), "org-1", "2026-07-31", runs)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWarningReconcilerSkipsNonAutoResolvableTypes(t *testing.T) {
	svc, mock := newTestWarningReconciler(t)
	runKey := "tour-1|2026-07-31|09:00"

	mock.ExpectQuery(`SELECT (.+) FROM warnings`).
		WithArgs("org-1", "2026-07-31").
		WillReturnRows(sqlmock.NewRows(warningColumnsForReconciler).
			AddRow("w-1", "org-1", "2026-07-31", "capacity_exceeded", &runKey, nil, "overstaffed", false, nil))

	runs := map[string]models.TourRun{
		runKey: {Key: runKey, Status: models.TourRunAssigned},
	}

	count, err := svc.Reconcile(context.Background(), "org-1", "2026-07-31", runs)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
