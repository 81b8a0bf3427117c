package entity

import (
	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

// ProjectView вычисляет фазу, которую должен показать участник callerID.
// Если участник уже сделал свой ход в совместной фазе, он получает
// WAITING_* вариант, иначе общую фазу. Отсутствие сессии означает IDLE.
func ProjectView(s *Session, callerID uuid.UUID) valueobject.ViewPhase {
	if s == nil {
		return valueobject.ViewIdle
	}
	self := s.PartyOf(callerID)
	if self == nil {
		return valueobject.ViewIdle
	}

	switch s.Phase {
	case valueobject.PhaseIdle:
		return valueobject.ViewIdle
	case valueobject.PhasePendingPartner:
		if callerID == s.CreatorID {
			return valueobject.ViewPendingCreator
		}
		return valueobject.ViewPendingPartner
	case valueobject.PhaseEvidence:
		if self.HasSubmittedEvidence() {
			return valueobject.ViewWaitingEvidence
		}
		return valueobject.ViewEvidence
	case valueobject.PhaseAnalyzing:
		return valueobject.ViewAnalyzing
	case valueobject.PhasePriming:
		if self.PrimingComplete {
			return valueobject.ViewWaitingPriming
		}
		return valueobject.ViewPriming
	case valueobject.PhaseJointMenu:
		if self.JointReady {
			return valueobject.ViewWaitingJoint
		}
		return valueobject.ViewJointMenu
	case valueobject.PhaseResolutionSelect:
		if self.ResolutionPick != nil {
			return valueobject.ViewWaitingResolution
		}
		return valueobject.ViewResolutionSelect
	case valueobject.PhaseResolutionMismatch:
		return valueobject.ViewResolutionMismatch
	case valueobject.PhaseVerdict:
		if self.VerdictAccepted {
			return valueobject.ViewWaitingVerdictAccept
		}
		return valueobject.ViewVerdict
	case valueobject.PhaseClosed:
		return valueobject.ViewClosed
	}
	return valueobject.ViewIdle
}
