package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // required for pq.StringArray
	"gorm.io/gorm"
)

// Status is the lifecycle state of a violation. The set is closed: any
// value outside these six is invalid and must never be persisted.
type Status string

const (
	StatusOpen            Status = "open"
	StatusAcknowledged    Status = "acknowledged"
	StatusActionSubmitted Status = "action_submitted"
	StatusVerified        Status = "verified"
	StatusResolved        Status = "resolved"
	StatusWaived          Status = "waived"
)

// Valid reports whether s is one of the six lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusActionSubmitted,
		StatusVerified, StatusResolved, StatusWaived:
		return true
	}
	return false
}

// Terminal reports whether s is an absorbing state. No operation may move
// a violation out of a terminal status.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusWaived
}

// Violation represents one tracked operational infraction (labor, comp,
// revenue, safety) moving through the lifecycle state machine.
//
// Accountability fields are write-once: each is populated exactly once by
// the transition that owns it and never overwritten. Status and the
// presence of these fields stay mutually consistent (a verified violation
// always carries VerifiedAt/VerifiedBy, and ActionBy differs from
// VerifiedBy).
type Violation struct {
	// ID is the unique identifier for the violation (UUID).
	ID      string `gorm:"primaryKey" json:"id"`
	OrgID   string `gorm:"index" json:"org_id"`
	VenueID string `gorm:"index" json:"venue_id"`

	// Category of the infraction: "labor", "comp", "revenue", "safety".
	Category string         `json:"category"`
	Tags     pq.StringArray `gorm:"type:text[]" json:"tags"`

	Status Status `gorm:"index" json:"status"`

	// VerificationRequired is set at creation and immutable thereafter.
	// When true, resolution is only reachable through the verified state.
	VerificationRequired bool `json:"verification_required"`

	AckAt *time.Time `json:"ack_at,omitempty"`
	AckBy *string    `json:"ack_by,omitempty"`

	ActionAt      *time.Time `json:"action_at,omitempty"`
	ActionBy      *string    `json:"action_by,omitempty"`
	ActionSummary *string    `json:"action_summary,omitempty"`

	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	VerifiedBy *string    `json:"verified_by,omitempty"`

	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`

	WaivedAt     *time.Time `json:"waived_at,omitempty"`
	WaivedBy     *string    `json:"waived_by,omitempty"`
	WaiverReason *string    `json:"waiver_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that assigns a UUID when no ID is set and
// defaults the status to open.
func (v *Violation) BeforeCreate(tx *gorm.DB) (err error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Status == "" {
		v.Status = StatusOpen
	}
	return
}
