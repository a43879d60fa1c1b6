package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of fact recorded in the event log.
type EventType string

const (
	EventCreated         EventType = "created"
	EventAcknowledged    EventType = "acknowledged"
	EventActionSubmitted EventType = "action_submitted"
	EventVerified        EventType = "verified"
	EventResolved        EventType = "resolved"
	EventWaived          EventType = "waived"
	EventEscalated       EventType = "escalated"
	EventSilencePenalty  EventType = "silence_penalty"
	EventStallPenalty    EventType = "stall_penalty"
	EventReopened        EventType = "reopened"
)

// Transition reports whether the event type records a status change.
// Escalation penalties annotate the log without moving the machine.
func (t EventType) Transition() bool {
	switch t {
	case EventEscalated, EventSilencePenalty, EventStallPenalty:
		return false
	}
	return true
}

// Metadata keys used by the lifecycle operations.
const (
	MetaActionSummary  = "action_summary"
	MetaResolutionNote = "resolution_note"
	MetaWaiverReason   = "waiver_reason"
	MetaForced         = "forced"
)

// ViolationEvent is one immutable fact about a violation's history. Rows
// are insert-only; no update or delete path exists anywhere in the core.
// Replaying a violation's events in (OccurredAt, ID) order reconstructs
// its current status and accountability fields.
type ViolationEvent struct {
	// ID is a monotonically increasing surrogate key; it breaks ordering
	// ties between events recorded at the same instant.
	ID          uint   `gorm:"primaryKey" json:"id"`
	ViolationID string `gorm:"index" json:"violation_id"`

	EventType EventType `json:"event_type"`

	// FromStatus and ToStatus are nil for escalation events, which never
	// change status.
	FromStatus *Status `json:"from_status,omitempty"`
	ToStatus   *Status `json:"to_status,omitempty"`

	// ActorID is nil for system-generated escalation events.
	ActorID *string `json:"actor_id,omitempty"`

	OccurredAt time.Time `gorm:"index" json:"occurred_at"`

	// Metadata holds the JSON-encoded key/value payload (resolution note,
	// waiver reason, action summary snapshot).
	Metadata string `json:"metadata,omitempty"`
}

// EncodeMetadata serializes the payload into the Metadata column. A nil
// or empty map leaves the column empty.
func (e *ViolationEvent) EncodeMetadata(payload map[string]string) error {
	if len(payload) == 0 {
		e.Metadata = ""
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	e.Metadata = string(b)
	return nil
}

// DecodeMetadata parses the Metadata column back into a map. An empty
// column decodes to an empty map.
func (e *ViolationEvent) DecodeMetadata() (map[string]string, error) {
	payload := make(map[string]string)
	if e.Metadata == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(e.Metadata), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
