package models

import "time"

// AssignmentWithBooking is the join view C5 (pickup-order sync), C7, and
// C9 all operate on: a confirmed guide assignment plus the booking fields
// needed to place it in a tour run and order its pickup.
type AssignmentWithBooking struct {
	AssignmentID         string     `db:"assignment_id"`
	BookingID            string     `db:"booking_id"`
	GuideID              *string    `db:"guide_id"`
	OutsourcedGuideName  *string    `db:"outsourced_guide_name"`
	AssignedAt           time.Time  `db:"assigned_at"`
	PickupOrder          *int       `db:"pickup_order"`
	CalculatedPickupTime *string    `db:"calculated_pickup_time"`
	DriveTimeMinutes     *int       `db:"drive_time_minutes"`
	TourID               string     `db:"tour_id"`
	BookingDate          string     `db:"booking_date"`
	BookingTime          string     `db:"booking_time"`
	PickupTime           *string    `db:"pickup_time"`
	TotalParticipants    int        `db:"total_participants"`
	ExperienceMode       *ExperienceMode `db:"experience_mode"`
	CreatedAt            time.Time  `db:"created_at"`
}

// Assignee reconstructs the tagged Assignee variant for this view.
func (a AssignmentWithBooking) Assignee() Assignee {
	if a.GuideID != nil && *a.GuideID != "" {
		return Assignee{InternalGuideID: *a.GuideID}
	}
	name := ""
	if a.OutsourcedGuideName != nil {
		name = *a.OutsourcedGuideName
	}
	return Assignee{ExternalName: name}
}
