package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
)

// Результаты судьи применяются идемпотентно: повторная или запоздавшая
// доставка для другой сессии или уже пройденной фазы ничего не меняет.
// Каждый метод возвращает false, если результат отброшен.

// ApplyAnalysis прикрепляет анализ и подготовительный материал: ANALYZING → PRIMING.
func (s *Session) ApplyAnalysis(sessionID uuid.UUID, analysis, priming json.RawMessage) bool {
	if s.ID != sessionID || s.Phase != valueobject.PhaseAnalyzing {
		return false
	}
	if err := s.moveTo(valueobject.PhasePriming); err != nil {
		return false
	}
	s.Analysis = cloneRaw(analysis)
	s.PrimingContent = cloneRaw(priming)
	s.finishStage(StageAnalysis)
	return true
}

// ApplyJointMenu прикрепляет общее меню: PRIMING → JOINT_MENU.
func (s *Session) ApplyJointMenu(sessionID uuid.UUID, menu json.RawMessage) bool {
	if s.ID != sessionID || s.Phase != valueobject.PhasePriming || s.JointMenu != nil {
		return false
	}
	if err := s.moveTo(valueobject.PhaseJointMenu); err != nil {
		return false
	}
	s.JointMenu = cloneRaw(menu)
	s.finishStage(StageJointMenu)
	return true
}

// ApplyResolutionOptions прикрепляет варианты решений: JOINT_MENU → RESOLUTION_SELECT.
// Пришедшие раньше, ещё в PRIMING, варианты только сохраняются, и барьер
// подготовки потом сразу ведёт в RESOLUTION_SELECT.
func (s *Session) ApplyResolutionOptions(sessionID uuid.UUID, options []ResolutionOption) bool {
	if s.ID != sessionID || s.ResolutionOptions != nil || len(options) == 0 {
		return false
	}

	switch s.Phase {
	case valueobject.PhaseJointMenu:
		if err := s.moveTo(valueobject.PhaseResolutionSelect); err != nil {
			return false
		}
	case valueobject.PhasePriming:
		s.touch()
	default:
		return false
	}

	s.ResolutionOptions = make([]ResolutionOption, len(options))
	for i, opt := range options {
		s.ResolutionOptions[i] = opt.clone()
	}
	s.finishStage(StageResolutions)
	return true
}

// ApplyHybrid прикрепляет объединённое решение, делает его итоговым и
// переводит сессию в VERDICT. Возвращает шаг рендера вердикта.
func (s *Session) ApplyHybrid(sessionID uuid.UUID, hybrid ResolutionOption) (JudgeStage, bool) {
	if s.ID != sessionID || s.Phase != valueobject.PhaseResolutionMismatch {
		return "", false
	}
	if hybrid.ID == "" {
		hybrid.ID = HybridResolutionID
	}

	merged := hybrid.clone()
	s.HybridResolution = &merged
	stage, err := s.finalize(hybrid.clone())
	if err != nil {
		return "", false
	}
	return stage, true
}

// ApplyVerdict прикрепляет версию вердикта, если именно она ожидается.
func (s *Session) ApplyVerdict(sessionID uuid.UUID, version int, content json.RawMessage) bool {
	if s.ID != sessionID || s.Phase != valueobject.PhaseVerdict {
		return false
	}
	if version == 0 || version != s.PendingVerdictVersion {
		return false
	}

	verdict := VerdictVersion{
		Version:   version,
		Content:   cloneRaw(content),
		CreatedAt: time.Now(),
	}
	s.Verdict = &verdict
	s.VerdictHistory = append(s.VerdictHistory, verdict.clone())
	s.PendingVerdictVersion = 0
	s.finishStage(StageVerdict)
	s.touch()
	return true
}

// ApplyJudgeFailure фиксирует ошибку шага. Фаза остаётся прежней,
// участники могут повторить действие.
func (s *Session) ApplyJudgeFailure(sessionID uuid.UUID, stage JudgeStage, message string) bool {
	if s.ID != sessionID || s.PendingStage != stage || s.Phase != stagePhase(stage) {
		return false
	}
	s.PendingStage = ""
	s.JudgeError = &JudgeFailure{
		Stage:   stage,
		Code:    apperror.ErrCodeUpstream,
		Message: message,
		At:      time.Now(),
	}
	s.touch()
	return true
}

func (s *Session) finishStage(stage JudgeStage) {
	if s.PendingStage == stage {
		s.PendingStage = ""
	}
	if s.JudgeError != nil && s.JudgeError.Stage == stage {
		s.JudgeError = nil
	}
}
