package lifecycle_test

import (
	"errors"
	"testing"
	"time"

	"opscheck/backend/internal/config"
	"opscheck/backend/internal/lifecycle"
	"opscheck/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newEngine(st *MockStorage, auth *MockAuthority) *lifecycle.Service {
	svc := lifecycle.NewService(st, auth)
	svc.Now = func() time.Time { return testNow }
	return svc
}

func strPtr(s string) *string { return &s }

func eventMatcher(eventType models.EventType, from, to models.Status, actorID string) interface{} {
	return mock.MatchedBy(func(e *models.ViolationEvent) bool {
		return e.EventType == eventType &&
			e.FromStatus != nil && *e.FromStatus == from &&
			e.ToStatus != nil && *e.ToStatus == to &&
			e.ActorID != nil && *e.ActorID == actorID
	})
}

func TestAcknowledge_Success(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("CommitStatus", "v1", models.StatusOpen, models.StatusAcknowledged, map[string]interface{}{
		"ack_at": testNow,
		"ack_by": "mgr-a",
	}).Return(true, nil)
	st.On("AppendEvent", eventMatcher(models.EventAcknowledged, models.StatusOpen, models.StatusAcknowledged, "mgr-a"), map[string]string(nil)).Return(nil)

	res, err := engine.Acknowledge("v1", "mgr-a")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusOpen, res.FromStatus)
	assert.Equal(t, models.StatusAcknowledged, res.ToStatus)
	st.AssertExpectations(t)
}

func TestAcknowledge_ConflictWhenNotOpen(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("CommitStatus", "v1", models.StatusOpen, models.StatusAcknowledged, mock.Anything).Return(false, nil)

	res, err := engine.Acknowledge("v1", "mgr-a")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, lifecycle.FailureConflict, res.FailureKind)
	assert.Equal(t, "not in open status", res.Message)
	st.AssertNotCalled(t, "AppendEvent", mock.Anything, mock.Anything)
}

// Two concurrent acknowledgers: the compare-and-swap lets exactly one
// commit land; the loser gets a conflict and no second event is appended.
func TestAcknowledge_ConcurrentCallers(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("CommitStatus", "v2", models.StatusOpen, models.StatusAcknowledged, mock.Anything).Return(true, nil).Once()
	st.On("CommitStatus", "v2", models.StatusOpen, models.StatusAcknowledged, mock.Anything).Return(false, nil).Once()
	st.On("AppendEvent", eventMatcher(models.EventAcknowledged, models.StatusOpen, models.StatusAcknowledged, "mgr-a"), map[string]string(nil)).Return(nil).Once()

	first, err := engine.Acknowledge("v2", "mgr-a")
	require.NoError(t, err)
	second, err := engine.Acknowledge("v2", "mgr-b")
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.Equal(t, models.StatusAcknowledged, first.ToStatus)
	assert.False(t, second.Success)
	assert.Equal(t, lifecycle.FailureConflict, second.FailureKind)
	st.AssertExpectations(t)
}

func TestAcknowledge_InfrastructureFaultPropagates(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("connection refused"))

	_, err := engine.Acknowledge("v1", "mgr-a")
	assert.Error(t, err)
}

func TestSubmitAction_EmptySummaryRejectedBeforeStore(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	for _, summary := range []string{"", "   ", "\t\n"} {
		res, err := engine.SubmitAction("v1", "mgr-a", summary)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, lifecycle.FailureValidation, res.FailureKind)
	}
	// Validation failures never touch the store.
	st.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "AppendEvent", mock.Anything, mock.Anything)
}

func TestSubmitAction_RecordsSummaryVerbatim(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("CommitStatus", "v1", models.StatusAcknowledged, models.StatusActionSubmitted, map[string]interface{}{
		"action_at":      testNow,
		"action_by":      "mgr-a",
		"action_summary": "Retrained staff",
	}).Return(true, nil)
	st.On("AppendEvent",
		eventMatcher(models.EventActionSubmitted, models.StatusAcknowledged, models.StatusActionSubmitted, "mgr-a"),
		map[string]string{models.MetaActionSummary: "Retrained staff"},
	).Return(nil)

	res, err := engine.SubmitAction("v1", "mgr-a", "Retrained staff")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusActionSubmitted, res.ToStatus)
	st.AssertExpectations(t)
}

func TestSubmitAction_ConflictWhenNotAcknowledged(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("CommitStatus", "v1", models.StatusAcknowledged, models.StatusActionSubmitted, mock.Anything).Return(false, nil)

	res, err := engine.SubmitAction("v1", "mgr-a", "Retrained staff")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureConflict, res.FailureKind)
}

func TestVerify_SecondPartyRule(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:       "v1",
		Status:   models.StatusActionSubmitted,
		ActionBy: strPtr("mgr-a"),
	}, nil)

	res, err := engine.Verify("v1", "mgr-a")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, lifecycle.FailureAccountability, res.FailureKind)
	assert.Contains(t, res.Message, "different person")
	st.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_DifferentActorSucceeds(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:       "v1",
		Status:   models.StatusActionSubmitted,
		ActionBy: strPtr("mgr-a"),
	}, nil)
	st.On("CommitStatus", "v1", models.StatusActionSubmitted, models.StatusVerified, map[string]interface{}{
		"verified_at": testNow,
		"verified_by": "mgr-b",
	}).Return(true, nil)
	st.On("AppendEvent", eventMatcher(models.EventVerified, models.StatusActionSubmitted, models.StatusVerified, "mgr-b"), map[string]string(nil)).Return(nil)

	res, err := engine.Verify("v1", "mgr-b")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusVerified, res.ToStatus)
	st.AssertExpectations(t)
}

func TestVerify_NotFound(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "missing").Return(nil, nil)

	res, err := engine.Verify("missing", "mgr-b")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureNotFound, res.FailureKind)
}

func TestVerify_WrongStatus(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{ID: "v1", Status: models.StatusOpen}, nil)

	res, err := engine.Verify("v1", "mgr-b")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureState, res.FailureKind)
}

func TestVerify_ConflictOnStaleSnapshot(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	// The snapshot passes the guard, but another actor commits first.
	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:       "v1",
		Status:   models.StatusActionSubmitted,
		ActionBy: strPtr("mgr-a"),
	}, nil)
	st.On("CommitStatus", "v1", models.StatusActionSubmitted, models.StatusVerified, mock.Anything).Return(false, nil)

	res, err := engine.Verify("v1", "mgr-b")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureConflict, res.FailureKind)
	st.AssertNotCalled(t, "AppendEvent", mock.Anything, mock.Anything)
}

func TestResolve_RequiresVerificationGate(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:                   "v1",
		Status:               models.StatusActionSubmitted,
		VerificationRequired: true,
	}, nil)

	res, err := engine.Resolve("v1", "mgr-a", "")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, lifecycle.FailureState, res.FailureKind)
	assert.Equal(t, "requires verification before resolution", res.Message)
	st.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_FromActionSubmittedWithoutVerificationRequired(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:     "v1",
		Status: models.StatusActionSubmitted,
	}, nil)
	st.On("CommitStatus", "v1", models.StatusActionSubmitted, models.StatusResolved, map[string]interface{}{
		"resolved_at":     testNow,
		"resolved_by":     "mgr-a",
		"resolution_note": "done",
	}).Return(true, nil)
	st.On("AppendEvent",
		eventMatcher(models.EventResolved, models.StatusActionSubmitted, models.StatusResolved, "mgr-a"),
		map[string]string{models.MetaResolutionNote: "done"},
	).Return(nil)

	res, err := engine.Resolve("v1", "mgr-a", "done")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusActionSubmitted, res.FromStatus)
	st.AssertExpectations(t)
}

func TestResolve_FromVerified(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:                   "v1",
		Status:               models.StatusVerified,
		VerificationRequired: true,
	}, nil)
	st.On("CommitStatus", "v1", models.StatusVerified, models.StatusResolved, map[string]interface{}{
		"resolved_at": testNow,
		"resolved_by": "mgr-a",
	}).Return(true, nil)
	st.On("AppendEvent", eventMatcher(models.EventResolved, models.StatusVerified, models.StatusResolved, "mgr-a"), map[string]string{}).Return(nil)

	res, err := engine.Resolve("v1", "mgr-a", "")

	require.NoError(t, err)
	assert.True(t, res.Success)
	st.AssertExpectations(t)
}

func TestResolve_TerminalStatusRejected(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{ID: "v1", Status: models.StatusWaived}, nil)

	res, err := engine.Resolve("v1", "mgr-a", "")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureState, res.FailureKind)
}

func TestWaive_EmptyReasonRejectedBeforeAuthority(t *testing.T) {
	st := new(MockStorage)
	auth := new(MockAuthority)
	engine := newEngine(st, auth)

	res, err := engine.Waive("v1", "owner-1", "  ", "org-1")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureValidation, res.FailureKind)
	auth.AssertNotCalled(t, "HasAnyRole", mock.Anything, mock.Anything, mock.Anything)
}

func TestWaive_RoleRejected(t *testing.T) {
	st := new(MockStorage)
	auth := new(MockAuthority)
	engine := newEngine(st, auth)

	auth.On("HasAnyRole", "org-1", "server-x", config.WaiverRoles).Return(false, nil)

	res, err := engine.Waive("v3", "server-x", "not applicable", "org-1")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureAccountability, res.FailureKind)
	st.AssertNotCalled(t, "GetViolationByID", mock.Anything)
	st.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWaive_AuthorityFailureFailsClosed(t *testing.T) {
	st := new(MockStorage)
	auth := new(MockAuthority)
	engine := newEngine(st, auth)

	auth.On("HasAnyRole", "org-1", "owner-1", config.WaiverRoles).Return(false, errors.New("lookup timed out"))

	res, err := engine.Waive("v1", "owner-1", "duplicate detection", "org-1")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, lifecycle.FailureAccountability, res.FailureKind)
	st.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWaive_CrossTenantRejected(t *testing.T) {
	st := new(MockStorage)
	auth := new(MockAuthority)
	engine := newEngine(st, auth)

	auth.On("HasAnyRole", "org-2", "owner-2", config.WaiverRoles).Return(true, nil)
	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:     "v1",
		OrgID:  "org-1",
		Status: models.StatusOpen,
	}, nil)

	res, err := engine.Waive("v1", "owner-2", "not ours", "org-2")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureAccountability, res.FailureKind)
	assert.Contains(t, res.Message, "different organization")
	st.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWaive_NonWaivableStatus(t *testing.T) {
	st := new(MockStorage)
	auth := new(MockAuthority)
	engine := newEngine(st, auth)

	auth.On("HasAnyRole", "org-1", "owner-1", config.WaiverRoles).Return(true, nil)
	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:     "v1",
		OrgID:  "org-1",
		Status: models.StatusResolved,
	}, nil)

	res, err := engine.Waive("v1", "owner-1", "moot", "org-1")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureState, res.FailureKind)
}

func TestWaive_Success(t *testing.T) {
	st := new(MockStorage)
	auth := new(MockAuthority)
	engine := newEngine(st, auth)

	auth.On("HasAnyRole", "org-1", "owner-1", config.WaiverRoles).Return(true, nil)
	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:     "v1",
		OrgID:  "org-1",
		Status: models.StatusAcknowledged,
	}, nil)
	st.On("CommitStatus", "v1", models.StatusAcknowledged, models.StatusWaived, map[string]interface{}{
		"waived_at":     testNow,
		"waived_by":     "owner-1",
		"waiver_reason": "duplicate detection",
	}).Return(true, nil)
	st.On("AppendEvent",
		eventMatcher(models.EventWaived, models.StatusAcknowledged, models.StatusWaived, "owner-1"),
		map[string]string{models.MetaWaiverReason: "duplicate detection"},
	).Return(nil)

	res, err := engine.Waive("v1", "owner-1", "duplicate detection", "org-1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusWaived, res.ToStatus)
	st.AssertExpectations(t)
	auth.AssertExpectations(t)
}

func TestLegacyResolve_NoOpOnTerminal(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{ID: "v1", Status: models.StatusResolved}, nil)

	res, err := engine.LegacyResolve("v1", "mgr-a", "")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusResolved, res.FromStatus)
	assert.Equal(t, models.StatusResolved, res.ToStatus)
	assert.False(t, res.Forced)
	st.AssertNotCalled(t, "ForceResolve", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "AppendEvent", mock.Anything, mock.Anything)
}

func TestLegacyResolve_FillsUnsetAccountabilityFields(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	// Fresh open violation: every intermediate slot is empty.
	st.On("GetViolationByID", "v1").Return(&models.Violation{ID: "v1", Status: models.StatusOpen}, nil)
	st.On("ForceResolve", "v1", mock.MatchedBy(func(fields map[string]interface{}) bool {
		return fields["ack_by"] == "mgr-a" &&
			fields["action_by"] == "mgr-a" &&
			fields["resolved_by"] == "mgr-a" &&
			fields["action_summary"] != nil
	})).Return(true, nil)
	st.On("AppendEvent",
		eventMatcher(models.EventResolved, models.StatusOpen, models.StatusResolved, "mgr-a"),
		mock.MatchedBy(func(payload map[string]string) bool {
			return payload[models.MetaForced] == "true"
		}),
	).Return(nil)

	res, err := engine.LegacyResolve("v1", "mgr-a", "")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Forced)
	assert.Equal(t, models.StatusOpen, res.FromStatus)
	assert.Equal(t, models.StatusResolved, res.ToStatus)
	st.AssertExpectations(t)
}

func TestLegacyResolve_PreservesExistingAccountabilityFields(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	ackAt := testNow.Add(-time.Hour)
	st.On("GetViolationByID", "v1").Return(&models.Violation{
		ID:     "v1",
		Status: models.StatusAcknowledged,
		AckAt:  &ackAt,
		AckBy:  strPtr("mgr-b"),
	}, nil)
	st.On("ForceResolve", "v1", mock.MatchedBy(func(fields map[string]interface{}) bool {
		_, touchesAck := fields["ack_by"]
		return !touchesAck && fields["action_by"] == "mgr-a"
	})).Return(true, nil)
	st.On("AppendEvent", mock.Anything, mock.Anything).Return(nil)

	res, err := engine.LegacyResolve("v1", "mgr-a", "cleanup")

	require.NoError(t, err)
	assert.True(t, res.Success)
	st.AssertExpectations(t)
}

func TestLegacyResolve_Idempotent(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "v1").Return(&models.Violation{ID: "v1", Status: models.StatusActionSubmitted}, nil).Once()
	st.On("ForceResolve", "v1", mock.Anything).Return(true, nil).Once()
	st.On("AppendEvent", mock.Anything, mock.Anything).Return(nil).Once()
	st.On("GetViolationByID", "v1").Return(&models.Violation{ID: "v1", Status: models.StatusResolved}, nil).Once()

	first, err := engine.LegacyResolve("v1", "mgr-a", "")
	require.NoError(t, err)
	second, err := engine.LegacyResolve("v1", "mgr-a", "")
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.Equal(t, models.StatusResolved, first.ToStatus)
	assert.True(t, second.Success)
	assert.Equal(t, models.StatusResolved, second.FromStatus)
	assert.Equal(t, models.StatusResolved, second.ToStatus)
	st.AssertExpectations(t)
}

func TestLegacyResolve_NotFound(t *testing.T) {
	st := new(MockStorage)
	engine := newEngine(st, new(MockAuthority))

	st.On("GetViolationByID", "missing").Return(nil, nil)

	res, err := engine.LegacyResolve("missing", "mgr-a", "")

	require.NoError(t, err)
	assert.Equal(t, lifecycle.FailureNotFound, res.FailureKind)
}
