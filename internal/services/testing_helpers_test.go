package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/tourops/dispatch-core/internal/config"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// testLogWriter discards log output so package tests stay quiet while
// still exercising every logrus call path.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

var bookingColumns = []string{
	"id", "organization_id", "tour_id", "booking_date", "booking_time", "total_participants",
	"status", "pickup_zone_id", "pickup_location", "pickup_time", "experience_mode",
	"customer_id", "created_at", "updated_at",
}

var tourColumns = []string{
	"id", "organization_id", "name", "duration_minutes", "guests_per_guide", "created_at", "updated_at",
}

var guideAssignmentColumns = []string{
	"id", "organization_id", "booking_id", "guide_id", "outsourced_guide_name", "outsourced_contact",
	"status", "assigned_at", "confirmed_at", "pickup_order", "calculated_pickup_time", "drive_time_minutes",
}

var dispatchStatusColumns = []string{
	"id", "organization_id", "date", "status", "optimized_at", "dispatched_at", "dispatched_by",
	"total_guests", "total_guides", "total_drive_minutes", "efficiency_score", "unresolved_warnings",
}

var guideColumnsForServices = []string{
	"id", "organization_id", "first_name", "last_name", "status",
	"vehicle_capacity", "languages", "base_zone_id", "phone",
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		DefaultGuestsPerGuide:      8,
		DefaultPickupMinutes:       15,
		DefaultDriveMinutes:        10,
		EfficiencyThresholdMinutes: 30,
		AverageDriveSpeedKmh:       40,
		MaxAlternativesPerWarning:  3,
	}
}
