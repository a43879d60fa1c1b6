// Package lifecycle implements the violation lifecycle state machine:
// pure guard logic plus atomic conditional commits against the violation
// store, with every state change recorded in the append-only event log.
//
// Concurrency control is a single compare-and-swap per operation: each
// commit is scoped by the violation id and its expected prior status.
// When a concurrent actor wins the race the commit affects zero rows and
// the operation reports a conflict; nothing is ever locked.
package lifecycle

import (
	"log"
	"strings"
	"time"

	"opscheck/backend/internal/authority"
	"opscheck/backend/internal/config"
	"opscheck/backend/internal/metrics"
	"opscheck/backend/internal/models"
	"opscheck/backend/internal/storage"
)

// legacyActionSummary is the placeholder written into an absent
// action_summary slot by LegacyResolve. Replay applies the same constant
// so a legacy-resolved violation still folds back exactly.
const legacyActionSummary = "auto-filled by legacy resolve"

// Service is the transition engine. It is the sole writer of violation
// status and accountability fields.
type Service struct {
	Storage   storage.Storage
	Authority authority.RoleProvider

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// NewService creates a transition engine over the given store and role
// provider.
func NewService(s storage.Storage, a authority.RoleProvider) *Service {
	return &Service{
		Storage:   s,
		Authority: a,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) observe(operation string, res TransitionResult, err error) {
	outcome := "fault"
	if err == nil {
		if res.Success {
			outcome = "success"
		} else {
			outcome = string(res.FailureKind)
		}
	}
	metrics.TransitionsTotal.WithLabelValues(operation, outcome).Inc()
}

func (s *Service) appendEvent(event *models.ViolationEvent, payload map[string]string) error {
	if err := s.Storage.AppendEvent(event, payload); err != nil {
		return err
	}
	metrics.EventsAppendedTotal.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

func statusPtr(st models.Status) *models.Status { return &st }

// Acknowledge moves a violation from open to acknowledged and records who
// acknowledged it. The commit is conditional on the open status, so it
// needs no prior read: a zero-row result means the violation either is
// not open or was just taken by a concurrent actor.
func (s *Service) Acknowledge(violationID, actorID string) (TransitionResult, error) {
	res, err := s.acknowledge(violationID, actorID)
	s.observe("acknowledge", res, err)
	return res, err
}

func (s *Service) acknowledge(violationID, actorID string) (TransitionResult, error) {
	now := s.Now()
	ok, err := s.Storage.CommitStatus(violationID, models.StatusOpen, models.StatusAcknowledged, map[string]interface{}{
		"ack_at": now,
		"ack_by": actorID,
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return failed(violationID, FailureConflict, "not in open status"), nil
	}

	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventAcknowledged,
		FromStatus:  statusPtr(models.StatusOpen),
		ToStatus:    statusPtr(models.StatusAcknowledged),
		ActorID:     &actorID,
		OccurredAt:  now,
	}
	if err := s.appendEvent(event, nil); err != nil {
		return TransitionResult{}, err
	}
	return succeeded(violationID, models.StatusOpen, models.StatusAcknowledged), nil
}

// SubmitAction moves a violation from acknowledged to action_submitted,
// recording the corrective action summary verbatim. A blank summary is
// rejected before the store is touched.
func (s *Service) SubmitAction(violationID, actorID, actionSummary string) (TransitionResult, error) {
	res, err := s.submitAction(violationID, actorID, actionSummary)
	s.observe("submit_action", res, err)
	return res, err
}

func (s *Service) submitAction(violationID, actorID, actionSummary string) (TransitionResult, error) {
	summary := strings.TrimSpace(actionSummary)
	if summary == "" {
		return failed(violationID, FailureValidation, "action summary must not be empty"), nil
	}
	if len(summary) > config.MaxActionSummaryLength {
		return failed(violationID, FailureValidation, "action summary too long"), nil
	}

	now := s.Now()
	ok, err := s.Storage.CommitStatus(violationID, models.StatusAcknowledged, models.StatusActionSubmitted, map[string]interface{}{
		"action_at":      now,
		"action_by":      actorID,
		"action_summary": summary,
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return failed(violationID, FailureConflict, "not in acknowledged status"), nil
	}

	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventActionSubmitted,
		FromStatus:  statusPtr(models.StatusAcknowledged),
		ToStatus:    statusPtr(models.StatusActionSubmitted),
		ActorID:     &actorID,
		OccurredAt:  now,
	}
	if err := s.appendEvent(event, map[string]string{models.MetaActionSummary: summary}); err != nil {
		return TransitionResult{}, err
	}
	return succeeded(violationID, models.StatusAcknowledged, models.StatusActionSubmitted), nil
}

// Verify moves a violation from action_submitted to verified. The
// second-party rule is a hard accountability invariant: the verifier must
// differ from whoever submitted the corrective action. The guard reads a
// snapshot, but the conditional commit re-validates the transition, so a
// stale read can only produce a spurious failure, never a bad commit.
func (s *Service) Verify(violationID, actorID string) (TransitionResult, error) {
	res, err := s.verify(violationID, actorID)
	s.observe("verify", res, err)
	return res, err
}

func (s *Service) verify(violationID, actorID string) (TransitionResult, error) {
	v, err := s.Storage.GetViolationByID(violationID)
	if err != nil {
		return TransitionResult{}, err
	}
	if v == nil {
		return failed(violationID, FailureNotFound, "violation not found"), nil
	}
	if v.Status != models.StatusActionSubmitted {
		return failed(violationID, FailureState, "not in action_submitted status"), nil
	}
	if v.ActionBy != nil && *v.ActionBy == actorID {
		return failed(violationID, FailureAccountability, "verification requires a different person than the one who submitted the action"), nil
	}

	now := s.Now()
	ok, err := s.Storage.CommitStatus(violationID, models.StatusActionSubmitted, models.StatusVerified, map[string]interface{}{
		"verified_at": now,
		"verified_by": actorID,
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return failed(violationID, FailureConflict, "violation changed concurrently, re-fetch and retry"), nil
	}

	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventVerified,
		FromStatus:  statusPtr(models.StatusActionSubmitted),
		ToStatus:    statusPtr(models.StatusVerified),
		ActorID:     &actorID,
		OccurredAt:  now,
	}
	if err := s.appendEvent(event, nil); err != nil {
		return TransitionResult{}, err
	}
	return succeeded(violationID, models.StatusActionSubmitted, models.StatusVerified), nil
}

// Resolve closes a violation from action_submitted or verified. When the
// violation was created with VerificationRequired it must pass through
// verified first; skipping verification is a dedicated failure, distinct
// from a plain wrong-status one.
func (s *Service) Resolve(violationID, actorID, resolutionNote string) (TransitionResult, error) {
	res, err := s.resolve(violationID, actorID, resolutionNote)
	s.observe("resolve", res, err)
	return res, err
}

func (s *Service) resolve(violationID, actorID, resolutionNote string) (TransitionResult, error) {
	note := strings.TrimSpace(resolutionNote)
	if len(note) > config.MaxResolutionNoteLength {
		return failed(violationID, FailureValidation, "resolution note too long"), nil
	}

	v, err := s.Storage.GetViolationByID(violationID)
	if err != nil {
		return TransitionResult{}, err
	}
	if v == nil {
		return failed(violationID, FailureNotFound, "violation not found"), nil
	}

	if v.Status != models.StatusActionSubmitted && v.Status != models.StatusVerified {
		return failed(violationID, FailureState, "not in a resolvable status"), nil
	}
	if v.VerificationRequired && v.Status != models.StatusVerified {
		return failed(violationID, FailureState, "requires verification before resolution"), nil
	}

	from := v.Status
	now := s.Now()
	fields := map[string]interface{}{
		"resolved_at": now,
		"resolved_by": actorID,
	}
	if note != "" {
		fields["resolution_note"] = note
	}
	ok, err := s.Storage.CommitStatus(violationID, from, models.StatusResolved, fields)
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return failed(violationID, FailureConflict, "violation changed concurrently, re-fetch and retry"), nil
	}

	payload := map[string]string{}
	if note != "" {
		payload[models.MetaResolutionNote] = note
	}
	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventResolved,
		FromStatus:  statusPtr(from),
		ToStatus:    statusPtr(models.StatusResolved),
		ActorID:     &actorID,
		OccurredAt:  now,
	}
	if err := s.appendEvent(event, payload); err != nil {
		return TransitionResult{}, err
	}
	return succeeded(violationID, from, models.StatusResolved), nil
}

// Waive closes a violation without corrective action. Guards, in order:
// non-empty reason, elevated role within the supplied org, the violation
// exists and belongs to that org, and the current status is waivable.
// Any authority-lookup failure rejects the waiver; it never approves by
// default.
func (s *Service) Waive(violationID, actorID, waiverReason, orgID string) (TransitionResult, error) {
	res, err := s.waive(violationID, actorID, waiverReason, orgID)
	s.observe("waive", res, err)
	return res, err
}

func (s *Service) waive(violationID, actorID, waiverReason, orgID string) (TransitionResult, error) {
	reason := strings.TrimSpace(waiverReason)
	if reason == "" {
		return failed(violationID, FailureValidation, "waiver reason must not be empty"), nil
	}
	if len(reason) > config.MaxWaiverReasonLength {
		return failed(violationID, FailureValidation, "waiver reason too long"), nil
	}

	allowed, err := s.Authority.HasAnyRole(orgID, actorID, config.WaiverRoles...)
	if err != nil {
		// Fail closed: a broken authority lookup rejects the waiver.
		log.Printf("WARN: Authority lookup failed for %s in org %s: %v", actorID, orgID, err)
		return failed(violationID, FailureAccountability, "authority check unavailable, waiver rejected"), nil
	}
	if !allowed {
		return failed(violationID, FailureAccountability, "waiving requires owner or admin role"), nil
	}

	v, err := s.Storage.GetViolationByID(violationID)
	if err != nil {
		return TransitionResult{}, err
	}
	if v == nil {
		return failed(violationID, FailureNotFound, "violation not found"), nil
	}
	if v.OrgID != orgID {
		return failed(violationID, FailureAccountability, "violation belongs to a different organization"), nil
	}
	if !Waivable(v.Status) {
		return failed(violationID, FailureState, "not in a waivable status"), nil
	}

	from := v.Status
	now := s.Now()
	ok, err := s.Storage.CommitStatus(violationID, from, models.StatusWaived, map[string]interface{}{
		"waived_at":     now,
		"waived_by":     actorID,
		"waiver_reason": reason,
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return failed(violationID, FailureConflict, "violation changed concurrently, re-fetch and retry"), nil
	}

	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventWaived,
		FromStatus:  statusPtr(from),
		ToStatus:    statusPtr(models.StatusWaived),
		ActorID:     &actorID,
		OccurredAt:  now,
	}
	if err := s.appendEvent(event, map[string]string{models.MetaWaiverReason: reason}); err != nil {
		return TransitionResult{}, err
	}
	return succeeded(violationID, from, models.StatusWaived), nil
}

// LegacyResolve is the backward-compatible force-to-resolved path for
// callers that do not drive the full machine. Already-terminal violations
// are a no-op success. Otherwise unset accountability slots are filled
// with defaults and the row is committed straight to resolved without a
// status precondition, which can race past a legitimate concurrent
// transition. It exists only for migration callers and should not be the
// model for anything new.
func (s *Service) LegacyResolve(violationID, actorID, resolutionNote string) (TransitionResult, error) {
	res, err := s.legacyResolve(violationID, actorID, resolutionNote)
	s.observe("legacy_resolve", res, err)
	return res, err
}

func (s *Service) legacyResolve(violationID, actorID, resolutionNote string) (TransitionResult, error) {
	note := strings.TrimSpace(resolutionNote)
	if len(note) > config.MaxResolutionNoteLength {
		return failed(violationID, FailureValidation, "resolution note too long"), nil
	}

	v, err := s.Storage.GetViolationByID(violationID)
	if err != nil {
		return TransitionResult{}, err
	}
	if v == nil {
		return failed(violationID, FailureNotFound, "violation not found"), nil
	}
	if v.Status.Terminal() {
		// Idempotent no-op: report the unchanged state explicitly.
		res := succeeded(violationID, v.Status, v.Status)
		res.Message = "already closed"
		return res, nil
	}

	now := s.Now()
	fields := map[string]interface{}{
		"resolved_at": now,
		"resolved_by": actorID,
	}
	if note != "" {
		fields["resolution_note"] = note
	}
	if v.AckAt == nil {
		fields["ack_at"] = now
		fields["ack_by"] = actorID
	}
	if v.ActionAt == nil {
		fields["action_at"] = now
		fields["action_by"] = actorID
		fields["action_summary"] = legacyActionSummary
	}

	from := v.Status
	ok, err := s.Storage.ForceResolve(violationID, fields)
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return failed(violationID, FailureNotFound, "violation not found"), nil
	}
	log.Printf("WARN: Violation %s force-resolved via legacy path from %s by %s", violationID, from, actorID)

	payload := map[string]string{models.MetaForced: "true"}
	if note != "" {
		payload[models.MetaResolutionNote] = note
	}
	event := &models.ViolationEvent{
		ViolationID: violationID,
		EventType:   models.EventResolved,
		FromStatus:  statusPtr(from),
		ToStatus:    statusPtr(models.StatusResolved),
		ActorID:     &actorID,
		OccurredAt:  now,
	}
	if err := s.appendEvent(event, payload); err != nil {
		return TransitionResult{}, err
	}

	res := succeeded(violationID, from, models.StatusResolved)
	res.Forced = true
	return res, nil
}
