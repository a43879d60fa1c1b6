package lifecycle

import (
	"fmt"

	"opscheck/backend/internal/models"
)

// CreateViolation inserts a new violation row in open status and appends
// its created event. This is the narrow primitive the external detection
// path calls; it is not a transition.
func (s *Service) CreateViolation(v *models.Violation, actorID string) error {
	if v.Status == "" {
		v.Status = models.StatusOpen
	}
	if v.Status != models.StatusOpen {
		return fmt.Errorf("violations must be created in open status, got %q", v.Status)
	}
	if err := s.Storage.CreateViolation(v); err != nil {
		return err
	}
	return s.InsertCreatedEvent(v.ID, actorID)
}

// InsertCreatedEvent appends the created event for a violation. actorID
// may be empty for detector-generated violations.
func (s *Service) InsertCreatedEvent(violationID, actorID string) error {
	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventCreated,
		ToStatus:    statusPtr(models.StatusOpen),
		OccurredAt:  s.Now(),
	}
	if actorID != "" {
		event.ActorID = &actorID
	}
	return s.appendEvent(event, nil)
}

// InsertEscalationEvent appends an escalation fact for the external
// escalation trigger. These are the only events carrying neither a from
// nor a to status: they annotate the log without moving the machine. The
// trigger's scheduling policy lives outside this core.
func (s *Service) InsertEscalationEvent(violationID string, eventType models.EventType, payload map[string]string) error {
	switch eventType {
	case models.EventEscalated, models.EventSilencePenalty, models.EventStallPenalty:
	default:
		return fmt.Errorf("event type %q is not an escalation event", eventType)
	}

	v, err := s.Storage.GetViolationByID(violationID)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("violation %s not found", violationID)
	}

	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   eventType,
		OccurredAt:  s.Now(),
	}
	return s.appendEvent(event, payload)
}
