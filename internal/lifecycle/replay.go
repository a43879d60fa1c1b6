package lifecycle

import (
	"fmt"
	"time"

	"opscheck/backend/internal/models"
)

// ReplayEvents folds a violation's ordered event log back into a
// snapshot. For a consistent log the result matches the stored row's
// status and every non-null accountability field; this is the audit
// guarantee the append-only log exists for.
//
// Events must arrive in (occurred_at, id) order, as returned by
// Storage.GetEventsForViolation.
func ReplayEvents(events []models.ViolationEvent) (*models.Violation, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("cannot replay an empty event log")
	}

	v := &models.Violation{ID: events[0].ViolationID}

	for i := range events {
		e := &events[i]
		if e.ViolationID != v.ID {
			return nil, fmt.Errorf("event %d belongs to violation %s, not %s", e.ID, e.ViolationID, v.ID)
		}

		payload, err := e.DecodeMetadata()
		if err != nil {
			return nil, fmt.Errorf("event %d has malformed metadata: %w", e.ID, err)
		}

		occurred := e.OccurredAt

		switch e.EventType {
		case models.EventCreated:
			v.Status = models.StatusOpen
			v.CreatedAt = occurred
			v.UpdatedAt = occurred

		case models.EventAcknowledged:
			v.Status = models.StatusAcknowledged
			v.AckAt = &occurred
			v.AckBy = e.ActorID
			v.UpdatedAt = occurred

		case models.EventActionSubmitted:
			v.Status = models.StatusActionSubmitted
			v.ActionAt = &occurred
			v.ActionBy = e.ActorID
			if summary, ok := payload[models.MetaActionSummary]; ok {
				v.ActionSummary = &summary
			}
			v.UpdatedAt = occurred

		case models.EventVerified:
			v.Status = models.StatusVerified
			v.VerifiedAt = &occurred
			v.VerifiedBy = e.ActorID
			v.UpdatedAt = occurred

		case models.EventResolved:
			v.Status = models.StatusResolved
			v.ResolvedAt = &occurred
			v.ResolvedBy = e.ActorID
			if note, ok := payload[models.MetaResolutionNote]; ok {
				v.ResolutionNote = &note
			}
			if payload[models.MetaForced] == "true" {
				// A legacy resolve filled unset intermediate slots with the
				// same actor and instant; mirror those defaults.
				fillLegacyDefaults(v, e.ActorID, occurred)
			}
			v.UpdatedAt = occurred

		case models.EventWaived:
			v.Status = models.StatusWaived
			v.WaivedAt = &occurred
			v.WaivedBy = e.ActorID
			if reason, ok := payload[models.MetaWaiverReason]; ok {
				v.WaiverReason = &reason
			}
			v.UpdatedAt = occurred

		case models.EventReopened:
			if e.ToStatus != nil {
				v.Status = *e.ToStatus
			}
			v.UpdatedAt = occurred

		case models.EventEscalated, models.EventSilencePenalty, models.EventStallPenalty:
			// Escalation facts never change the snapshot.

		default:
			return nil, fmt.Errorf("event %d has unknown type %q", e.ID, e.EventType)
		}
	}

	return v, nil
}

func fillLegacyDefaults(v *models.Violation, actorID *string, occurred time.Time) {
	if v.AckAt == nil {
		v.AckAt = &occurred
		v.AckBy = actorID
	}
	if v.ActionAt == nil {
		summary := legacyActionSummary
		v.ActionAt = &occurred
		v.ActionBy = actorID
		v.ActionSummary = &summary
	}
}
