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

func TestProjectView_NilSession(t *testing.T) {
	assert.Equal(t, valueobject.ViewIdle, entity.ProjectView(nil, uuid.New()))
}

func TestProjectView_PendingSplitsByRole(t *testing.T) {
	c := newCouple()
	s := servedSession(t, c)

	assert.Equal(t, valueobject.ViewPendingCreator, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewPendingPartner, entity.ProjectView(s, c.b))
	assert.Equal(t, valueobject.ViewIdle, entity.ProjectView(s, uuid.New()))
}

func TestProjectView_WaitingVariants(t *testing.T) {
	c := newCouple()
	s := evidenceSession(t, c)

	_, err := s.SubmitEvidence(c.a, "dishes", "frustrated", "help")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewWaitingEvidence, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewEvidence, entity.ProjectView(s, c.b))

	_, err = s.SubmitEvidence(c.b, "work", "tired", "rest")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewAnalyzing, entity.ProjectView(s, c.a))

	require.True(t, s.ApplyAnalysis(s.ID, json.RawMessage(`{}`), json.RawMessage(`{}`)))
	_, err = s.MarkPrimingComplete(c.b)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewPriming, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewWaitingPriming, entity.ProjectView(s, c.b))

	require.True(t, s.ApplyJointMenu(s.ID, json.RawMessage(`{}`)))
	_, err = s.MarkJointReady(c.a)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewWaitingJoint, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewJointMenu, entity.ProjectView(s, c.b))

	require.True(t, s.ApplyResolutionOptions(s.ID, testOptions()))
	_, err = s.SubmitResolutionPick(c.a, "R1")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewWaitingResolution, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewResolutionSelect, entity.ProjectView(s, c.b))

	_, err = s.SubmitResolutionPick(c.b, "R2")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewResolutionMismatch, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewResolutionMismatch, entity.ProjectView(s, c.b))

	_, err = s.AcceptPartnerResolution(c.b)
	require.NoError(t, err)
	require.True(t, s.ApplyVerdict(s.ID, 1, json.RawMessage(`{}`)))
	_, err = s.AcceptVerdict(c.b)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewVerdict, entity.ProjectView(s, c.a))
	assert.Equal(t, valueobject.ViewWaitingVerdictAccept, entity.ProjectView(s, c.b))

	_, err = s.AcceptVerdict(c.a)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ViewClosed, entity.ProjectView(s, c.a))
}

func TestProjectView_EveryPhaseMapsToValidView(t *testing.T) {
	c := newCouple()
	s := servedSession(t, c)

	for _, phase := range valueobject.AllPhases {
		s.Phase = phase
		for _, caller := range []uuid.UUID{c.a, c.b} {
			view := entity.ProjectView(s, caller)
			assert.True(t, view.IsValid(), "phase %s", phase)
		}
	}
}
