package models

import "time"

// BookingStatus is the lifecycle state of a customer reservation.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// DispatchEligible reports whether a booking in this status participates
// in dispatch (spec §3 invariant: only pending and confirmed do).
func (s BookingStatus) DispatchEligible() bool {
	return s == BookingPending || s == BookingConfirmed
}

// ExperienceMode is carried on a booking's pricing snapshot. It is
// optional — a nil *ExperienceMode means the booking carries no
// charter-exclusivity semantics at all (spec §9, open question i).
type ExperienceMode string

const (
	ExperienceModeJoin    ExperienceMode = "join"
	ExperienceModeBook    ExperienceMode = "book"
	ExperienceModeCharter ExperienceMode = "charter"
)

// Booking is a customer reservation (spec §3).
type Booking struct {
	ID                 string         `json:"id" db:"id"`
	OrganizationID     string         `json:"organization_id" db:"organization_id"`
	TourID             string         `json:"tour_id" db:"tour_id"`
	BookingDate        string         `json:"booking_date" db:"booking_date"` // YYYY-MM-DD
	BookingTime        string         `json:"booking_time" db:"booking_time"` // HH:MM
	TotalParticipants  int            `json:"total_participants" db:"total_participants"`
	Status             BookingStatus  `json:"status" db:"status"`
	PickupZoneID       *string        `json:"pickup_zone_id,omitempty" db:"pickup_zone_id"`
	PickupLocation     string         `json:"pickup_location,omitempty" db:"pickup_location"`
	PickupTime         *string        `json:"pickup_time,omitempty" db:"pickup_time"`
	ExperienceMode     *ExperienceMode `json:"experience_mode,omitempty" db:"experience_mode"`
	CustomerID         string         `json:"customer_id" db:"customer_id"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// IsCharter reports whether the booking's pricing snapshot marks it as an
// exclusive charter experience.
func (b Booking) IsCharter() bool {
	return b.ExperienceMode != nil && *b.ExperienceMode == ExperienceModeCharter
}
