package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

// Accept - приглашённый партнёр принимает повестку.
func (s *Session) Accept(userID uuid.UUID) error {
	if !s.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if s.Phase != valueobject.PhasePendingPartner {
		return ErrWrongPhase
	}
	if userID != s.PartnerID {
		return ErrNotInvitee
	}
	return s.moveTo(valueobject.PhaseEvidence)
}

// Dismiss - приглашённый партнёр отклоняет повестку, сессия удаляется без архива.
func (s *Session) Dismiss(userID uuid.UUID) error {
	if !s.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if s.Phase != valueobject.PhasePendingPartner {
		return ErrWrongPhase
	}
	if userID != s.PartnerID {
		return ErrNotInvitee
	}
	return s.moveTo(valueobject.PhaseIdle)
}

// Cancel отменяет сессию до начала разбирательства.
func (s *Session) Cancel(userID uuid.UUID) error {
	if !s.IsParticipant(userID) {
		return ErrNotParticipant
	}
	switch s.Phase {
	case valueobject.PhasePendingPartner:
	case valueobject.PhaseEvidence:
		if len(s.Addenda) > 0 {
			return ErrCancelNotAllowed
		}
	default:
		return ErrCancelNotAllowed
	}
	return s.moveTo(valueobject.PhaseIdle)
}

// Expire переводит зависшую сессию в IDLE по политике устаревания.
func (s *Session) Expire() error {
	if s.Phase != valueobject.PhasePendingPartner && s.Phase != valueobject.PhaseEvidence {
		return ErrWrongPhase
	}
	return s.moveTo(valueobject.PhaseIdle)
}

// SubmitEvidence записывает доказательства участника. Возвращает шаг судьи,
// который нужно запустить, или пустую строку.
//
// В фазе ANALYZING повторная отправка разрешена только после неудачного
// анализа: она заменяет тексты вызывающего и перезапускает анализ.
func (s *Session) SubmitEvidence(userID uuid.UUID, evidence, feelings, needs string) (JudgeStage, error) {
	self, other, err := s.parties(userID)
	if err != nil {
		return "", err
	}

	evidence, feelings, needs = normalizeText(evidence), normalizeText(feelings), normalizeText(needs)

	switch s.Phase {
	case valueobject.PhaseEvidence:
		if self.HasSubmittedEvidence() {
			return "", ErrAlreadySubmitted
		}
		if evidence == "" || feelings == "" || needs == "" {
			return "", ErrEmptyEvidence
		}
		recordEvidence(self, evidence, feelings, needs)
		if !other.HasSubmittedEvidence() {
			s.touch()
			return "", nil
		}
		if err := s.moveTo(valueobject.PhaseAnalyzing); err != nil {
			return "", err
		}
		s.PendingStage = StageAnalysis
		return StageAnalysis, nil

	case valueobject.PhaseAnalyzing:
		if !s.failedAt(StageAnalysis) {
			return "", ErrWrongPhase
		}
		if evidence == "" || feelings == "" || needs == "" {
			return "", ErrEmptyEvidence
		}
		recordEvidence(self, evidence, feelings, needs)
		s.startStage(StageAnalysis)
		return StageAnalysis, nil
	}

	return "", ErrWrongPhase
}

func recordEvidence(p *PartyState, evidence, feelings, needs string) {
	now := time.Now()
	p.Evidence = &evidence
	p.Feelings = &feelings
	p.Needs = &needs
	p.EvidenceSubmittedAt = &now
}

// MarkPrimingComplete - участник прочитал подготовительный материал.
func (s *Session) MarkPrimingComplete(userID uuid.UUID) (JudgeStage, error) {
	self, other, err := s.parties(userID)
	if err != nil {
		return "", err
	}
	if s.Phase != valueobject.PhasePriming {
		return "", ErrWrongPhase
	}
	if self.PrimingComplete {
		if other.PrimingComplete && s.failedAt(StageJointMenu) {
			s.startStage(StageJointMenu)
			return StageJointMenu, nil
		}
		return "", ErrAlreadyMarked
	}

	self.PrimingComplete = true
	s.touch()
	if !other.PrimingComplete {
		return "", nil
	}

	if s.ResolutionOptions != nil {
		return "", s.moveTo(valueobject.PhaseResolutionSelect)
	}
	if s.PendingStage == StageJointMenu {
		return "", nil
	}
	s.startStage(StageJointMenu)
	return StageJointMenu, nil
}

// MarkJointReady - симметричный барьер JOINT_MENU → RESOLUTION_SELECT.
func (s *Session) MarkJointReady(userID uuid.UUID) (JudgeStage, error) {
	self, other, err := s.parties(userID)
	if err != nil {
		return "", err
	}
	if s.Phase != valueobject.PhaseJointMenu {
		return "", ErrWrongPhase
	}
	if self.JointReady {
		if other.JointReady && s.failedAt(StageResolutions) {
			s.startStage(StageResolutions)
			return StageResolutions, nil
		}
		return "", ErrAlreadyMarked
	}

	self.JointReady = true
	s.touch()
	if !other.JointReady {
		return "", nil
	}

	if s.ResolutionOptions != nil {
		return "", s.moveTo(valueobject.PhaseResolutionSelect)
	}
	if s.PendingStage == StageResolutions {
		return "", nil
	}
	s.startStage(StageResolutions)
	return StageResolutions, nil
}

// SubmitResolutionPick фиксирует выбор участника. Совпавшие выборы ведут
// к вердикту, разные - к RESOLUTION_MISMATCH.
func (s *Session) SubmitResolutionPick(userID uuid.UUID, resolutionID string) (JudgeStage, error) {
	self, other, err := s.parties(userID)
	if err != nil {
		return "", err
	}
	if s.Phase != valueobject.PhaseResolutionSelect {
		return "", ErrWrongPhase
	}
	resolutionID = normalizeText(resolutionID)
	if resolutionID == "" {
		return "", ErrMissingResolution
	}
	option := s.FindOption(resolutionID)
	if option == nil {
		return "", ErrUnknownResolution
	}
	if self.ResolutionPick != nil {
		return "", ErrAlreadyPicked
	}

	self.ResolutionPick = &resolutionID
	s.touch()
	if other.ResolutionPick == nil {
		return "", nil
	}

	if *other.ResolutionPick != resolutionID {
		return "", s.moveTo(valueobject.PhaseResolutionMismatch)
	}
	return s.finalize(option.clone())
}

// AcceptPartnerResolution - вызывающий уступает и принимает выбор партнёра.
func (s *Session) AcceptPartnerResolution(userID uuid.UUID) (JudgeStage, error) {
	_, other, err := s.parties(userID)
	if err != nil {
		return "", err
	}
	if s.Phase != valueobject.PhaseResolutionMismatch {
		return "", ErrWrongPhase
	}
	if other.ResolutionPick == nil {
		return "", ErrMissingResolution
	}
	option := s.FindOption(*other.ResolutionPick)
	if option == nil {
		return "", ErrUnknownResolution
	}
	return s.finalize(option.clone())
}

// RequestHybridResolution запрашивает у судьи объединение двух выборов.
func (s *Session) RequestHybridResolution(userID uuid.UUID) (JudgeStage, error) {
	if !s.IsParticipant(userID) {
		return "", ErrNotParticipant
	}
	if s.Phase != valueobject.PhaseResolutionMismatch {
		return "", ErrWrongPhase
	}
	if s.PendingStage == StageHybrid {
		return "", ErrHybridPending
	}
	s.startStage(StageHybrid)
	return StageHybrid, nil
}

// finalize фиксирует итоговое решение и ставит в очередь первую версию вердикта.
func (s *Session) finalize(option ResolutionOption) (JudgeStage, error) {
	if err := s.moveTo(valueobject.PhaseVerdict); err != nil {
		return "", err
	}
	s.FinalResolution = &option
	s.PendingVerdictVersion = s.CurrentVerdictVersion() + 1
	s.startStage(StageVerdict)
	return StageVerdict, nil
}

// RequestSettlement предлагает мировую. Одновременно может висеть только одно предложение.
func (s *Session) RequestSettlement(userID uuid.UUID) error {
	if !s.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if !s.Phase.AllowsSettlement() {
		return ErrWrongPhase
	}
	if s.SettlementRequestedBy != nil {
		return ErrSettlementPending
	}

	now := time.Now()
	requester := userID
	s.SettlementRequestedBy = &requester
	s.SettlementRequestedAt = &now
	s.touch()
	return nil
}

// AcceptSettlement сразу переводит сессию в VERDICT с минимальным вердиктом мировой.
func (s *Session) AcceptSettlement(userID uuid.UUID) error {
	if err := s.checkSettlementAnswer(userID); err != nil {
		return err
	}
	requester := *s.SettlementRequestedBy
	if err := s.moveTo(valueobject.PhaseVerdict); err != nil {
		return err
	}
	s.lapsedSettlement = uuid.Nil

	content, _ := json.Marshal(map[string]any{
		"type":         "settlement",
		"requested_by": requester.String(),
		"accepted_by":  userID.String(),
	})
	now := time.Now()
	verdict := VerdictVersion{
		Version:    s.CurrentVerdictVersion() + 1,
		Content:    content,
		Settlement: true,
		CreatedAt:  now,
	}
	s.Verdict = &verdict
	s.VerdictHistory = append(s.VerdictHistory, verdict.clone())
	s.Settled = true
	s.SettlementRequestedBy = nil
	s.SettlementRequestedAt = nil
	s.PendingStage = ""
	s.PendingVerdictVersion = 0
	s.JudgeError = nil
	return nil
}

// DeclineSettlement снимает предложение и возвращает того, кто его сделал.
func (s *Session) DeclineSettlement(userID uuid.UUID) (uuid.UUID, error) {
	if err := s.checkSettlementAnswer(userID); err != nil {
		return uuid.Nil, err
	}
	requester := *s.SettlementRequestedBy
	s.SettlementRequestedBy = nil
	s.SettlementRequestedAt = nil
	s.touch()
	return requester, nil
}

func (s *Session) checkSettlementAnswer(userID uuid.UUID) error {
	if !s.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if !s.Phase.AllowsSettlement() {
		return ErrWrongPhase
	}
	if s.SettlementRequestedBy == nil {
		return ErrNoSettlement
	}
	if *s.SettlementRequestedBy == userID {
		return ErrOwnSettlement
	}
	return nil
}

// SubmitAddendum добавляет дополнение и ставит в очередь новую версию вердикта.
// Принятие вердикта обоими сбрасывается.
func (s *Session) SubmitAddendum(userID uuid.UUID, text string) (JudgeStage, error) {
	if !s.IsParticipant(userID) {
		return "", ErrNotParticipant
	}
	if s.Phase != valueobject.PhaseVerdict {
		return "", ErrWrongPhase
	}
	text = normalizeText(text)
	if text == "" {
		return "", ErrEmptyAddendum
	}
	if s.PendingVerdictVersion != 0 {
		return "", ErrVerdictPending
	}

	version := s.CurrentVerdictVersion() + 1
	s.Addenda = append(s.Addenda, Addendum{
		Version:   version,
		AuthorID:  userID,
		Text:      text,
		CreatedAt: time.Now(),
	})
	s.Creator.VerdictAccepted = false
	s.Partner.VerdictAccepted = false
	s.PendingVerdictVersion = version
	s.startStage(StageVerdict)
	return StageVerdict, nil
}

// AcceptVerdict - участник принимает текущую версию вердикта.
// Возвращает true, когда оба приняли и сессия закрыта.
func (s *Session) AcceptVerdict(userID uuid.UUID) (bool, error) {
	self, other, err := s.parties(userID)
	if err != nil {
		return false, err
	}
	if s.Phase != valueobject.PhaseVerdict {
		return false, ErrWrongPhase
	}
	if s.Verdict == nil || s.PendingVerdictVersion != 0 {
		return false, ErrVerdictPending
	}
	if self.VerdictAccepted {
		return false, ErrAlreadyAccepted
	}

	self.VerdictAccepted = true
	s.touch()
	if !other.VerdictAccepted {
		return false, nil
	}
	if err := s.moveTo(valueobject.PhaseClosed); err != nil {
		return false, err
	}
	return true, nil
}

// RetryJudge перезапускает последний неудавшийся шаг судьи.
func (s *Session) RetryJudge(userID uuid.UUID) (JudgeStage, error) {
	if !s.IsParticipant(userID) {
		return "", ErrNotParticipant
	}
	if s.JudgeError == nil {
		return "", ErrNothingToRetry
	}
	if s.PendingStage != "" {
		return "", ErrJudgeBusy
	}

	stage := s.JudgeError.Stage
	if s.Phase != stagePhase(stage) {
		return "", ErrWrongPhase
	}
	s.startStage(stage)
	return stage, nil
}

// stagePhase - фаза, в которой ожидается результат шага.
func stagePhase(stage JudgeStage) valueobject.Phase {
	switch stage {
	case StageAnalysis:
		return valueobject.PhaseAnalyzing
	case StageJointMenu:
		return valueobject.PhasePriming
	case StageResolutions:
		return valueobject.PhaseJointMenu
	case StageHybrid:
		return valueobject.PhaseResolutionMismatch
	case StageVerdict:
		return valueobject.PhaseVerdict
	}
	return valueobject.PhaseIdle
}

func (s *Session) startStage(stage JudgeStage) {
	s.PendingStage = stage
	s.JudgeError = nil
	s.touch()
}

func (s *Session) failedAt(stage JudgeStage) bool {
	return s.PendingStage == "" && s.JudgeError != nil && s.JudgeError.Stage == stage
}
