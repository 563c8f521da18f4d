package models

import "time"

// GuideAssignmentStatus is the lifecycle state of a guide assignment row.
type GuideAssignmentStatus string

const (
	AssignmentPending   GuideAssignmentStatus = "pending"
	AssignmentConfirmed GuideAssignmentStatus = "confirmed"
	AssignmentDeclined  GuideAssignmentStatus = "declined"
)

// GuideAssignment is the (bookingId -> guide|outsourced) record (spec §3).
// Invariants: exactly one of GuideID/OutsourcedGuideName is non-empty; at
// most one Confirmed assignment exists per booking at any time;
// ConfirmedAt is set iff Status is confirmed.
type GuideAssignment struct {
	ID                   string                `json:"id" db:"id"`
	OrganizationID       string                `json:"organization_id" db:"organization_id"`
	BookingID            string                `json:"booking_id" db:"booking_id"`
	GuideID              *string               `json:"guide_id,omitempty" db:"guide_id"`
	OutsourcedGuideName  *string               `json:"outsourced_guide_name,omitempty" db:"outsourced_guide_name"`
	OutsourcedContact    *string               `json:"outsourced_contact,omitempty" db:"outsourced_contact"`
	Status               GuideAssignmentStatus `json:"status" db:"status"`
	AssignedAt           time.Time             `json:"assigned_at" db:"assigned_at"`
	ConfirmedAt          *time.Time            `json:"confirmed_at,omitempty" db:"confirmed_at"`
	PickupOrder          *int                  `json:"pickup_order,omitempty" db:"pickup_order"`
	CalculatedPickupTime *string               `json:"calculated_pickup_time,omitempty" db:"calculated_pickup_time"`
	DriveTimeMinutes     *int                  `json:"drive_time_minutes,omitempty" db:"drive_time_minutes"`
}

// Assignee reconstructs the tagged Assignee variant from the two nullable
// columns this row is persisted with.
func (a GuideAssignment) Assignee() Assignee {
	if a.GuideID != nil && *a.GuideID != "" {
		return Assignee{InternalGuideID: *a.GuideID}
	}
	name := ""
	if a.OutsourcedGuideName != nil {
		name = *a.OutsourcedGuideName
	}
	contact := ""
	if a.OutsourcedContact != nil {
		contact = *a.OutsourcedContact
	}
	return Assignee{ExternalName: name, ExternalContact: contact}
}
