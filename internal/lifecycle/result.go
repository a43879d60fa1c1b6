package lifecycle

import "opscheck/backend/internal/models"

// FailureKind classifies a business-rule failure. Infrastructure faults
// (store unreachable) are never represented here; they travel as plain
// errors back to the caller.
type FailureKind string

const (
	// FailureValidation: missing or malformed payload, detected before
	// any store access.
	FailureValidation FailureKind = "validation"
	// FailureState: the operation is not legal from the violation's
	// current status.
	FailureState FailureKind = "state"
	// FailureAccountability: second-party rule broken, insufficient role
	// for a waiver, or a cross-tenant mismatch.
	FailureAccountability FailureKind = "accountability"
	// FailureConflict: the conditional commit affected zero rows. Either
	// the violation was never in the expected state or another actor won
	// the race; the caller should re-fetch and decide, not retry blindly.
	FailureConflict FailureKind = "conflict"
	// FailureNotFound: the violation id resolves to no row.
	FailureNotFound FailureKind = "not_found"
)

// TransitionResult is the outcome of one lifecycle operation. Expected
// business failures are reported here as data; only infrastructure faults
// are returned as errors.
type TransitionResult struct {
	Success     bool          `json:"success"`
	ViolationID string        `json:"violation_id"`
	FromStatus  models.Status `json:"from_status,omitempty"`
	ToStatus    models.Status `json:"to_status,omitempty"`
	FailureKind FailureKind   `json:"failure_kind,omitempty"`
	Message     string        `json:"message,omitempty"`

	// Forced marks a commit that bypassed the compare-and-swap check
	// (legacy resolve only).
	Forced bool `json:"forced,omitempty"`
}

func succeeded(violationID string, from, to models.Status) TransitionResult {
	return TransitionResult{
		Success:     true,
		ViolationID: violationID,
		FromStatus:  from,
		ToStatus:    to,
	}
}

func failed(violationID string, kind FailureKind, message string) TransitionResult {
	return TransitionResult{
		Success:     false,
		ViolationID: violationID,
		FailureKind: kind,
		Message:     message,
	}
}
