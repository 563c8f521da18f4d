package models

import "time"

// DispatchStatusValue is the dispatch-day lifecycle state (spec §3).
type DispatchStatusValue string

const (
	DispatchPending   DispatchStatusValue = "pending"
	DispatchOptimized DispatchStatusValue = "optimized"
	DispatchReady     DispatchStatusValue = "ready"
	DispatchDispatched DispatchStatusValue = "dispatched"
)

// DispatchStatus is the one-per-(organization,date) dispatch record.
// Lifecycle: created on first read; pending -> optimized, optimized <->
// ready, ready -> dispatched. Once dispatched it is frozen.
type DispatchStatus struct {
	ID                 string              `json:"id" db:"id"`
	OrganizationID     string              `json:"organization_id" db:"organization_id"`
	Date               string              `json:"date" db:"date"`
	Status             DispatchStatusValue `json:"status" db:"status"`
	OptimizedAt        *time.Time          `json:"optimized_at,omitempty" db:"optimized_at"`
	DispatchedAt       *time.Time          `json:"dispatched_at,omitempty" db:"dispatched_at"`
	DispatchedBy       *string             `json:"dispatched_by,omitempty" db:"dispatched_by"`
	TotalGuests        int                 `json:"total_guests" db:"total_guests"`
	TotalGuides        int                 `json:"total_guides" db:"total_guides"`
	TotalDriveMinutes  int                 `json:"total_drive_minutes" db:"total_drive_minutes"`
	EfficiencyScore    int                 `json:"efficiency_score" db:"efficiency_score"`
	UnresolvedWarnings int                 `json:"unresolved_warnings" db:"unresolved_warnings"`
	Warnings           []Warning           `json:"warnings,omitempty" db:"-"`
}

// IsDispatched reports whether the day is frozen against further mutation.
func (d DispatchStatus) IsDispatched() bool { return d.Status == DispatchDispatched }

// WarningType identifies the category of scheduling problem a Warning
// reports (spec §3).
type WarningType string

const (
	WarningInsufficientGuides WarningType = "insufficient_guides"
	WarningCapacityExceeded   WarningType = "capacity_exceeded"
	WarningNoQualifiedGuide   WarningType = "no_qualified_guide"
	WarningNoAvailableGuide   WarningType = "no_available_guide"
	WarningConflict           WarningType = "conflict"
)

// AutoResolvable reports whether this warning type is ever auto-resolved
// by the reconciler (C10); capacity_exceeded and conflict never are.
func (t WarningType) AutoResolvable() bool {
	switch t {
	case WarningInsufficientGuides, WarningNoAvailableGuide, WarningNoQualifiedGuide:
		return true
	default:
		return false
	}
}

// ResolutionAction is the closed set of actions a warning Resolution can
// carry (spec §3, §4.8, §9 "message passing").
type ResolutionAction string

const (
	ActionAssignGuide  ResolutionAction = "assign_guide"
	ActionAddExternal  ResolutionAction = "add_external"
	ActionCancelTour   ResolutionAction = "cancel_tour"
	ActionSplitBooking ResolutionAction = "split_booking"
	ActionAcknowledge  ResolutionAction = "acknowledge"
)

// SplitConfig is the payload required by ActionSplitBooking.
type SplitConfig struct {
	BookingID string      `json:"booking_id"`
	Splits    []BookingSplit `json:"splits"`
}

type BookingSplit struct {
	GuideID     string `json:"guide_id"`
	GuestCount  int    `json:"guest_count"`
}

// Resolution is a value describing one remediation for a Warning. It is a
// tagged union over Action; resolvers switch over Action rather than
// string-dispatching.
type Resolution struct {
	Action       ResolutionAction `json:"action"`
	BookingID    string           `json:"booking_id,omitempty"`
	TourRunKey   string           `json:"tour_run_key,omitempty"`
	GuideID      string           `json:"guide_id,omitempty"`
	OutsourcedName    string      `json:"outsourced_name,omitempty"`
	OutsourcedContact string      `json:"outsourced_contact,omitempty"`
	Split        *SplitConfig     `json:"split,omitempty"`
}

// Warning is attached to a DispatchStatus (spec §3).
type Warning struct {
	ID           string       `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	Date         string       `json:"date" db:"date"`
	Type         WarningType  `json:"type" db:"type"`
	TourRunKey   *string      `json:"tour_run_key,omitempty" db:"tour_run_key"`
	BookingID    *string      `json:"booking_id,omitempty" db:"booking_id"`
	Message      string       `json:"message" db:"message"`
	Resolutions  []Resolution `json:"resolutions,omitempty" db:"-"`
	Resolved     bool         `json:"resolved" db:"resolved"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
	Resolution   *Resolution  `json:"resolution,omitempty" db:"-"`
}
