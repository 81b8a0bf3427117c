package valueobject

import "github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"

// Phase - общая фаза сессии суда, хранится на сервере.
type Phase string

const (
	PhaseIdle               Phase = "IDLE"
	PhasePendingPartner     Phase = "PENDING_PARTNER"
	PhaseEvidence           Phase = "EVIDENCE"
	PhaseAnalyzing          Phase = "ANALYZING"
	PhasePriming            Phase = "PRIMING"
	PhaseJointMenu          Phase = "JOINT_MENU"
	PhaseResolutionSelect   Phase = "RESOLUTION_SELECT"
	PhaseResolutionMismatch Phase = "RESOLUTION_MISMATCH"
	PhaseVerdict            Phase = "VERDICT"
	PhaseClosed             Phase = "CLOSED"
)

// AllPhases перечисляет все десять фаз в порядке лестницы.
var AllPhases = []Phase{
	PhaseIdle,
	PhasePendingPartner,
	PhaseEvidence,
	PhaseAnalyzing,
	PhasePriming,
	PhaseJointMenu,
	PhaseResolutionSelect,
	PhaseResolutionMismatch,
	PhaseVerdict,
	PhaseClosed,
}

func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhasePendingPartner, PhaseEvidence, PhaseAnalyzing, PhasePriming,
		PhaseJointMenu, PhaseResolutionSelect, PhaseResolutionMismatch, PhaseVerdict, PhaseClosed:
		return true
	}
	return false
}

// IsActive сообщает, занимает ли сессия в этой фазе слот пары.
func (p Phase) IsActive() bool {
	return p.IsValid() && p != PhaseIdle && p != PhaseClosed
}

// phaseTransitions - единственная таблица допустимых переходов.
// Переход в IDLE означает отмену/истечение, в CLOSED - архивирование.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:               {PhasePendingPartner},
	PhasePendingPartner:     {PhaseEvidence, PhaseIdle},
	PhaseEvidence:           {PhaseAnalyzing, PhaseVerdict, PhaseIdle},
	PhaseAnalyzing:          {PhasePriming, PhaseVerdict},
	PhasePriming:            {PhaseJointMenu, PhaseResolutionSelect, PhaseVerdict},
	PhaseJointMenu:          {PhaseResolutionSelect, PhaseVerdict},
	PhaseResolutionSelect:   {PhaseVerdict, PhaseResolutionMismatch},
	PhaseResolutionMismatch: {PhaseVerdict},
	PhaseVerdict:            {PhaseClosed},
	PhaseClosed:             {},
}

func (p Phase) CanTransitionTo(next Phase) bool {
	allowed, ok := phaseTransitions[p]
	if !ok {
		return false
	}

	for _, phase := range allowed {
		if phase == next {
			return true
		}
	}
	return false
}

// AllowsSettlement сообщает, можно ли в этой фазе предлагать мировую.
func (p Phase) AllowsSettlement() bool {
	switch p {
	case PhaseEvidence, PhaseAnalyzing, PhasePriming, PhaseJointMenu, PhaseResolutionSelect:
		return true
	}
	return false
}

// NewPhase разбирает фазу из хранилища.
func NewPhase(phase string) (Phase, error) {
	p := Phase(phase)
	if !p.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректная фаза сессии")
	}
	return p, nil
}

// ViewPhase - фаза, которую рендерит конкретный участник.
type ViewPhase string

const (
	ViewIdle                 ViewPhase = "IDLE"
	ViewPendingCreator       ViewPhase = "PENDING_CREATOR"
	ViewPendingPartner       ViewPhase = "PENDING_PARTNER"
	ViewEvidence             ViewPhase = "EVIDENCE"
	ViewWaitingEvidence      ViewPhase = "WAITING_EVIDENCE"
	ViewAnalyzing            ViewPhase = "ANALYZING"
	ViewPriming              ViewPhase = "PRIMING"
	ViewWaitingPriming       ViewPhase = "WAITING_PRIMING"
	ViewJointMenu            ViewPhase = "JOINT_MENU"
	ViewWaitingJoint         ViewPhase = "WAITING_JOINT"
	ViewResolutionSelect     ViewPhase = "RESOLUTION_SELECT"
	ViewWaitingResolution    ViewPhase = "WAITING_RESOLUTION"
	ViewResolutionMismatch   ViewPhase = "RESOLUTION_MISMATCH"
	ViewVerdict              ViewPhase = "VERDICT"
	ViewWaitingVerdictAccept ViewPhase = "WAITING_VERDICT_ACCEPT"
	ViewClosed               ViewPhase = "CLOSED"
)

func (v ViewPhase) IsValid() bool {
	switch v {
	case ViewIdle, ViewPendingCreator, ViewPendingPartner, ViewEvidence, ViewWaitingEvidence,
		ViewAnalyzing, ViewPriming, ViewWaitingPriming, ViewJointMenu, ViewWaitingJoint,
		ViewResolutionSelect, ViewWaitingResolution, ViewResolutionMismatch, ViewVerdict,
		ViewWaitingVerdictAccept, ViewClosed:
		return true
	}
	return false
}

// IsWaiting сообщает, что участник уже сделал свой ход и ждёт партнёра.
func (v ViewPhase) IsWaiting() bool {
	switch v {
	case ViewWaitingEvidence, ViewWaitingPriming, ViewWaitingJoint, ViewWaitingResolution, ViewWaitingVerdictAccept:
		return true
	}
	return false
}
