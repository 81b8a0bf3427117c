package entity_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

type couple struct {
	a, b, id uuid.UUID
}

func newCouple() couple {
	return couple{a: uuid.New(), b: uuid.New(), id: uuid.New()}
}

func servedSession(t *testing.T, c couple) *entity.Session {
	t.Helper()
	s, err := entity.NewSession(c.a, c.b, c.id, valueobject.JudgeSwift)
	require.NoError(t, err)
	return s
}

func evidenceSession(t *testing.T, c couple) *entity.Session {
	t.Helper()
	s := servedSession(t, c)
	require.NoError(t, s.Accept(c.b))
	return s
}

func analyzingSession(t *testing.T, c couple) *entity.Session {
	t.Helper()
	s := evidenceSession(t, c)
	_, err := s.SubmitEvidence(c.a, "dishes", "frustrated", "help")
	require.NoError(t, err)
	stage, err := s.SubmitEvidence(c.b, "work", "tired", "rest")
	require.NoError(t, err)
	require.Equal(t, entity.StageAnalysis, stage)
	return s
}

func selectSession(t *testing.T, c couple) *entity.Session {
	t.Helper()
	s := analyzingSession(t, c)
	require.True(t, s.ApplyAnalysis(s.ID, json.RawMessage(`{"summary":"x"}`), json.RawMessage(`{"tips":[]}`)))
	require.True(t, s.ApplyJointMenu(s.ID, json.RawMessage(`{"menu":[]}`)))
	require.True(t, s.ApplyResolutionOptions(s.ID, testOptions()))
	require.Equal(t, valueobject.PhaseResolutionSelect, s.Phase)
	return s
}

func testOptions() []entity.ResolutionOption {
	return []entity.ResolutionOption{
		{ID: "R1", Payload: json.RawMessage(`{"title":"take turns"}`)},
		{ID: "R2", Payload: json.RawMessage(`{"title":"hire help"}`)},
	}
}

func TestNewSession(t *testing.T) {
	c := newCouple()

	s := servedSession(t, c)
	assert.Equal(t, valueobject.PhasePendingPartner, s.Phase)
	assert.Equal(t, valueobject.JudgeSwift, s.JudgeType)
	assert.Equal(t, c.a, s.Creator.UserID)
	assert.Equal(t, c.b, s.Partner.UserID)

	_, err := entity.NewSession(c.a, c.a, c.id, valueobject.JudgeClassic)
	assert.ErrorIs(t, err, entity.ErrSelfServe)

	_, err = entity.NewSession(c.a, c.b, c.id, valueobject.JudgeType("grumpy"))
	assert.Error(t, err)
}

func TestAccept_OnlyInvitee(t *testing.T) {
	c := newCouple()
	s := servedSession(t, c)

	assert.ErrorIs(t, s.Accept(c.a), entity.ErrNotInvitee)
	assert.ErrorIs(t, s.Accept(uuid.New()), entity.ErrNotParticipant)
	assert.Equal(t, valueobject.PhasePendingPartner, s.Phase)

	require.NoError(t, s.Accept(c.b))
	assert.Equal(t, valueobject.PhaseEvidence, s.Phase)
	assert.ErrorIs(t, s.Accept(c.b), entity.ErrWrongPhase)
}

func TestDismissAndCancel(t *testing.T) {
	c := newCouple()

	s := servedSession(t, c)
	assert.ErrorIs(t, s.Dismiss(c.a), entity.ErrNotInvitee)
	require.NoError(t, s.Dismiss(c.b))
	assert.Equal(t, valueobject.PhaseIdle, s.Phase)

	s = evidenceSession(t, c)
	require.NoError(t, s.Cancel(c.a))
	assert.Equal(t, valueobject.PhaseIdle, s.Phase)

	s = analyzingSession(t, c)
	assert.ErrorIs(t, s.Cancel(c.a), entity.ErrCancelNotAllowed)
	assert.Equal(t, valueobject.PhaseAnalyzing, s.Phase)
}

func TestSubmitEvidence_Gate(t *testing.T) {
	c := newCouple()
	s := evidenceSession(t, c)

	stage, err := s.SubmitEvidence(c.a, "  dishes ", "frustrated", "help")
	require.NoError(t, err)
	assert.Empty(t, stage)
	assert.Equal(t, valueobject.PhaseEvidence, s.Phase)
	assert.Equal(t, "dishes", *s.Creator.Evidence)

	_, err = s.SubmitEvidence(c.a, "again", "again", "again")
	assert.ErrorIs(t, err, entity.ErrAlreadySubmitted)
	assert.Equal(t, "dishes", *s.Creator.Evidence)

	_, err = s.SubmitEvidence(c.b, "work", "   ", "rest")
	assert.ErrorIs(t, err, entity.ErrEmptyEvidence)
	assert.False(t, s.Partner.HasSubmittedEvidence())

	stage, err = s.SubmitEvidence(c.b, "work", "tired", "rest")
	require.NoError(t, err)
	assert.Equal(t, entity.StageAnalysis, stage)
	assert.Equal(t, valueobject.PhaseAnalyzing, s.Phase)
	assert.Equal(t, entity.StageAnalysis, s.PendingStage)
}

func TestSubmitEvidence_ResubmitAfterAnalysisFailure(t *testing.T) {
	c := newCouple()
	s := analyzingSession(t, c)

	_, err := s.SubmitEvidence(c.a, "new", "new", "new")
	assert.ErrorIs(t, err, entity.ErrWrongPhase)

	require.True(t, s.ApplyJudgeFailure(s.ID, entity.StageAnalysis, "timeout"))
	assert.Equal(t, valueobject.PhaseAnalyzing, s.Phase)
	require.NotNil(t, s.JudgeError)

	stage, err := s.SubmitEvidence(c.a, "dishes again", "frustrated", "help")
	require.NoError(t, err)
	assert.Equal(t, entity.StageAnalysis, stage)
	assert.Equal(t, "dishes again", *s.Creator.Evidence)
	assert.Nil(t, s.JudgeError)
	assert.Equal(t, entity.StageAnalysis, s.PendingStage)
}

func TestJudgeCallbacks_Idempotent(t *testing.T) {
	c := newCouple()
	s := analyzingSession(t, c)

	analysis := json.RawMessage(`{"summary":"first"}`)
	require.True(t, s.ApplyAnalysis(s.ID, analysis, json.RawMessage(`{}`)))
	assert.Equal(t, valueobject.PhasePriming, s.Phase)

	assert.False(t, s.ApplyAnalysis(s.ID, json.RawMessage(`{"summary":"second"}`), nil))
	assert.JSONEq(t, `{"summary":"first"}`, string(s.Analysis))
	assert.Equal(t, valueobject.PhasePriming, s.Phase)

	assert.False(t, s.ApplyJointMenu(uuid.New(), json.RawMessage(`{}`)))
	assert.Equal(t, valueobject.PhasePriming, s.Phase)

	require.True(t, s.ApplyJointMenu(s.ID, json.RawMessage(`{"menu":1}`)))
	assert.False(t, s.ApplyJointMenu(s.ID, json.RawMessage(`{"menu":2}`)))
	assert.JSONEq(t, `{"menu":1}`, string(s.JointMenu))

	assert.False(t, s.ApplyResolutionOptions(s.ID, nil))
	require.True(t, s.ApplyResolutionOptions(s.ID, testOptions()))
	assert.False(t, s.ApplyResolutionOptions(s.ID, []entity.ResolutionOption{{ID: "R9"}}))
	assert.Len(t, s.ResolutionOptions, 2)
	assert.Equal(t, valueobject.PhaseResolutionSelect, s.Phase)
}

func TestPrimingGate(t *testing.T) {
	c := newCouple()
	s := analyzingSession(t, c)
	require.True(t, s.ApplyAnalysis(s.ID, json.RawMessage(`{}`), json.RawMessage(`{}`)))

	stage, err := s.MarkPrimingComplete(c.a)
	require.NoError(t, err)
	assert.Empty(t, stage)

	_, err = s.MarkPrimingComplete(c.a)
	assert.ErrorIs(t, err, entity.ErrAlreadyMarked)

	stage, err = s.MarkPrimingComplete(c.b)
	require.NoError(t, err)
	assert.Equal(t, entity.StageJointMenu, stage)
	assert.Equal(t, valueobject.PhasePriming, s.Phase)

	require.True(t, s.ApplyJointMenu(s.ID, json.RawMessage(`{}`)))
	assert.Equal(t, valueobject.PhaseJointMenu, s.Phase)

	stage, err = s.MarkJointReady(c.b)
	require.NoError(t, err)
	assert.Empty(t, stage)
	stage, err = s.MarkJointReady(c.a)
	require.NoError(t, err)
	assert.Equal(t, entity.StageResolutions, stage)

	require.True(t, s.ApplyResolutionOptions(s.ID, testOptions()))
	assert.Equal(t, valueobject.PhaseResolutionSelect, s.Phase)
}

func TestPrimingGate_OptionsAlreadyAttached(t *testing.T) {
	c := newCouple()
	s := analyzingSession(t, c)
	require.True(t, s.ApplyAnalysis(s.ID, json.RawMessage(`{}`), json.RawMessage(`{}`)))
	require.True(t, s.ApplyResolutionOptions(s.ID, testOptions()))
	assert.Equal(t, valueobject.PhasePriming, s.Phase)

	_, err := s.MarkPrimingComplete(c.a)
	require.NoError(t, err)
	stage, err := s.MarkPrimingComplete(c.b)
	require.NoError(t, err)
	assert.Empty(t, stage)
	assert.Equal(t, valueobject.PhaseResolutionSelect, s.Phase)
}

func TestResolutionPick_SameChoice(t *testing.T) {
	c := newCouple()
	s := selectSession(t, c)

	_, err := s.SubmitResolutionPick(c.a, "")
	assert.ErrorIs(t, err, entity.ErrMissingResolution)
	_, err = s.SubmitResolutionPick(c.a, "R7")
	assert.ErrorIs(t, err, entity.ErrUnknownResolution)

	stage, err := s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	assert.Empty(t, stage)
	_, err = s.SubmitResolutionPick(c.a, "R2")
	assert.ErrorIs(t, err, entity.ErrAlreadyPicked)

	stage, err = s.SubmitResolutionPick(c.b, "R1")
	require.NoError(t, err)
	assert.Equal(t, entity.StageVerdict, stage)
	assert.Equal(t, valueobject.PhaseVerdict, s.Phase)
	require.NotNil(t, s.FinalResolution)
	assert.Equal(t, "R1", s.FinalResolution.ID)
	assert.Equal(t, 1, s.PendingVerdictVersion)
}

func TestResolutionMismatch_Hybrid(t *testing.T) {
	c := newCouple()
	s := selectSession(t, c)

	_, err := s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	_, err = s.SubmitResolutionPick(c.b, "R2")
	require.NoError(t, err)
	assert.Equal(t, valueobject.PhaseResolutionMismatch, s.Phase)

	stage, err := s.RequestHybridResolution(c.a)
	require.NoError(t, err)
	assert.Equal(t, entity.StageHybrid, stage)
	_, err = s.RequestHybridResolution(c.b)
	assert.ErrorIs(t, err, entity.ErrHybridPending)

	stage, ok := s.ApplyHybrid(s.ID, entity.ResolutionOption{Payload: json.RawMessage(`{"title":"both"}`)})
	require.True(t, ok)
	assert.Equal(t, entity.StageVerdict, stage)
	assert.Equal(t, valueobject.PhaseVerdict, s.Phase)
	require.NotNil(t, s.HybridResolution)
	assert.Equal(t, entity.HybridResolutionID, s.FinalResolution.ID)
	assert.Equal(t, *s.HybridResolution, *s.FinalResolution)

	_, ok = s.ApplyHybrid(s.ID, entity.ResolutionOption{ID: "late"})
	assert.False(t, ok)
}

func TestResolutionMismatch_AcceptPartner(t *testing.T) {
	c := newCouple()
	s := selectSession(t, c)

	_, err := s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	_, err = s.SubmitResolutionPick(c.b, "R2")
	require.NoError(t, err)

	stage, err := s.AcceptPartnerResolution(c.a)
	require.NoError(t, err)
	assert.Equal(t, entity.StageVerdict, stage)
	assert.Equal(t, "R2", s.FinalResolution.ID)
}

func TestSettlement(t *testing.T) {
	c := newCouple()
	s := evidenceSession(t, c)

	require.NoError(t, s.RequestSettlement(c.a))
	assert.ErrorIs(t, s.RequestSettlement(c.b), entity.ErrSettlementPending)
	assert.ErrorIs(t, s.AcceptSettlement(c.a), entity.ErrOwnSettlement)

	requester, err := s.DeclineSettlement(c.b)
	require.NoError(t, err)
	assert.Equal(t, c.a, requester)
	assert.Nil(t, s.SettlementRequestedBy)

	_, err = s.DeclineSettlement(c.b)
	assert.ErrorIs(t, err, entity.ErrNoSettlement)

	require.NoError(t, s.RequestSettlement(c.b))
	require.NoError(t, s.AcceptSettlement(c.a))
	assert.Equal(t, valueobject.PhaseVerdict, s.Phase)
	assert.True(t, s.Settled)
	require.NotNil(t, s.Verdict)
	assert.True(t, s.Verdict.Settlement)
	assert.Equal(t, 1, s.Verdict.Version)
	assert.Zero(t, s.PendingVerdictVersion)
}

func TestSettlement_LapsesWhenWindowCloses(t *testing.T) {
	c := newCouple()
	s := selectSession(t, c)

	require.NoError(t, s.RequestSettlement(c.a))
	_, err := s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	_, err = s.SubmitResolutionPick(c.b, "R2")
	require.NoError(t, err)

	require.Equal(t, valueobject.PhaseResolutionMismatch, s.Phase)
	assert.Nil(t, s.SettlementRequestedBy)
	assert.Nil(t, s.SettlementRequestedAt)
	assert.Equal(t, c.a, s.TakeLapsedSettlement())
	assert.Equal(t, uuid.Nil, s.TakeLapsedSettlement())

	_, err = s.AcceptPartnerResolution(c.b)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PhaseVerdict, s.Phase)
	assert.Nil(t, s.SettlementRequestedBy)
	assert.Equal(t, uuid.Nil, s.TakeLapsedSettlement())
}

func TestSettlement_AcceptedIsNotLapsed(t *testing.T) {
	c := newCouple()
	s := evidenceSession(t, c)

	require.NoError(t, s.RequestSettlement(c.a))
	require.NoError(t, s.AcceptSettlement(c.b))
	assert.Equal(t, uuid.Nil, s.TakeLapsedSettlement())
}

func TestSettlement_NotBeforeEvidence(t *testing.T) {
	c := newCouple()
	s := servedSession(t, c)
	assert.ErrorIs(t, s.RequestSettlement(c.a), entity.ErrWrongPhase)
}

func TestAddendum_RequiresReacceptance(t *testing.T) {
	c := newCouple()
	s := selectSession(t, c)
	_, err := s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	_, err = s.SubmitResolutionPick(c.b, "R1")
	require.NoError(t, err)

	_, err = s.AcceptVerdict(c.a)
	assert.ErrorIs(t, err, entity.ErrVerdictPending)

	require.True(t, s.ApplyVerdict(s.ID, 1, json.RawMessage(`{"ruling":"v1"}`)))
	assert.False(t, s.ApplyVerdict(s.ID, 1, json.RawMessage(`{"ruling":"dup"}`)))

	closed, err := s.AcceptVerdict(c.a)
	require.NoError(t, err)
	assert.False(t, closed)

	_, err = s.SubmitAddendum(c.b, "  ")
	assert.ErrorIs(t, err, entity.ErrEmptyAddendum)

	stage, err := s.SubmitAddendum(c.b, "foo")
	require.NoError(t, err)
	assert.Equal(t, entity.StageVerdict, stage)
	assert.False(t, s.Creator.VerdictAccepted)
	assert.False(t, s.Partner.VerdictAccepted)
	assert.Equal(t, 2, s.PendingVerdictVersion)
	require.Len(t, s.Addenda, 1)
	assert.Equal(t, 2, s.Addenda[0].Version)
	assert.ErrorIs(t, s.Cancel(c.a), entity.ErrCancelNotAllowed)

	assert.False(t, s.ApplyVerdict(s.ID, 3, json.RawMessage(`{}`)))
	require.True(t, s.ApplyVerdict(s.ID, 2, json.RawMessage(`{"ruling":"v2"}`)))
	assert.Len(t, s.VerdictHistory, 2)

	closed, err = s.AcceptVerdict(c.a)
	require.NoError(t, err)
	assert.False(t, closed)
	closed, err = s.AcceptVerdict(c.b)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, valueobject.PhaseClosed, s.Phase)
}

func TestRetryJudge(t *testing.T) {
	c := newCouple()
	s := selectSession(t, c)
	_, err := s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	_, err = s.SubmitResolutionPick(c.b, "R2")
	require.NoError(t, err)

	_, err = s.RetryJudge(c.a)
	assert.ErrorIs(t, err, entity.ErrNothingToRetry)

	_, err = s.RequestHybridResolution(c.a)
	require.NoError(t, err)
	assert.False(t, s.ApplyJudgeFailure(s.ID, entity.StageVerdict, "wrong stage"))
	require.True(t, s.ApplyJudgeFailure(s.ID, entity.StageHybrid, "upstream down"))
	assert.Equal(t, valueobject.PhaseResolutionMismatch, s.Phase)

	stage, err := s.RetryJudge(c.b)
	require.NoError(t, err)
	assert.Equal(t, entity.StageHybrid, stage)
	assert.Nil(t, s.JudgeError)

	_, err = s.RetryJudge(c.b)
	assert.ErrorIs(t, err, entity.ErrNothingToRetry)
}

func TestRejectedActionDoesNotMutate(t *testing.T) {
	c := newCouple()
	s := evidenceSession(t, c)
	before := s.Clone()

	_, err := s.MarkPrimingComplete(c.a)
	assert.ErrorIs(t, err, entity.ErrWrongPhase)
	_, err = s.SubmitAddendum(c.a, "text")
	assert.ErrorIs(t, err, entity.ErrWrongPhase)
	_, err = s.AcceptVerdict(c.b)
	assert.ErrorIs(t, err, entity.ErrWrongPhase)

	assert.Equal(t, before, s)
}

func TestSnapshotFor_HidesPartnerEvidence(t *testing.T) {
	c := newCouple()
	s := evidenceSession(t, c)
	_, err := s.SubmitEvidence(c.a, "dishes", "frustrated", "help")
	require.NoError(t, err)

	forB := s.SnapshotFor(c.b)
	assert.Nil(t, forB.Creator.Evidence)
	assert.NotNil(t, forB.Creator.EvidenceSubmittedAt)

	forA := s.SnapshotFor(c.a)
	require.NotNil(t, forA.Creator.Evidence)
	assert.Equal(t, "dishes", *forA.Creator.Evidence)

	*forA.Creator.Evidence = "changed"
	assert.Equal(t, "dishes", *s.Creator.Evidence)
}

func TestPhaseNeverSkips(t *testing.T) {
	c := newCouple()
	s := servedSession(t, c)
	prev := s.Phase
	observe := func() {
		if s.Phase != prev {
			assert.True(t, prev.CanTransitionTo(s.Phase), "%s -> %s", prev, s.Phase)
			prev = s.Phase
		}
	}

	require.NoError(t, s.Accept(c.b))
	observe()
	_, _ = s.SubmitEvidence(c.a, "a", "b", "c")
	observe()
	_, _ = s.SubmitEvidence(c.b, "a", "b", "c")
	observe()
	s.ApplyAnalysis(s.ID, json.RawMessage(`{}`), json.RawMessage(`{}`))
	observe()
	s.ApplyJointMenu(s.ID, json.RawMessage(`{}`))
	observe()
	s.ApplyResolutionOptions(s.ID, testOptions())
	observe()
	_, _ = s.SubmitResolutionPick(c.a, "R2")
	observe()
	_, _ = s.SubmitResolutionPick(c.b, "R2")
	observe()
	s.ApplyVerdict(s.ID, 1, json.RawMessage(`{}`))
	observe()
	_, _ = s.AcceptVerdict(c.a)
	observe()
	_, _ = s.AcceptVerdict(c.b)
	observe()

	assert.Equal(t, valueobject.PhaseClosed, s.Phase)
}
