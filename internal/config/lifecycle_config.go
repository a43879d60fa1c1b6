package config

import "time"

const (
	// Authority
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleCacheTTL = 5 * time.Minute

	// Event feed
	EventFeedChannel = "violations:events"

	// Limits
	MaxActionSummaryLength  = 4000
	MaxResolutionNoteLength = 4000
	MaxWaiverReasonLength   = 2000
)

// WaiverRoles are the only roles permitted to waive a violation.
var WaiverRoles = []string{RoleOwner, RoleAdmin}
