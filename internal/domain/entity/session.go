package entity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
)

var (
	ErrSessionNotFound     = apperror.New(apperror.ErrCodeNotFound, "активная сессия не найдена")
	ErrNotParticipant      = apperror.New(apperror.ErrCodeForbidden, "вы не участник этой сессии")
	ErrWrongPhase          = apperror.New(apperror.ErrCodePrecondition, "действие недоступно в текущей фазе")
	ErrNotInvitee          = apperror.New(apperror.ErrCodePrecondition, "ответить на повестку может только приглашённый партнёр")
	ErrAlreadySubmitted    = apperror.New(apperror.ErrCodePrecondition, "вы уже отправили доказательства")
	ErrAlreadyMarked       = apperror.New(apperror.ErrCodePrecondition, "вы уже отметили готовность")
	ErrAlreadyPicked       = apperror.New(apperror.ErrCodePrecondition, "вы уже выбрали решение")
	ErrAlreadyAccepted     = apperror.New(apperror.ErrCodePrecondition, "вы уже приняли вердикт")
	ErrCancelNotAllowed    = apperror.New(apperror.ErrCodePrecondition, "отменить сессию можно только до начала разбирательства")
	ErrSettlementPending   = apperror.New(apperror.ErrCodePrecondition, "предложение о мировой уже ожидает ответа")
	ErrNoSettlement        = apperror.New(apperror.ErrCodePrecondition, "нет предложения о мировой")
	ErrOwnSettlement       = apperror.New(apperror.ErrCodePrecondition, "нельзя ответить на собственное предложение о мировой")
	ErrHybridPending       = apperror.New(apperror.ErrCodePrecondition, "объединение решений уже запрошено")
	ErrVerdictPending      = apperror.New(apperror.ErrCodePrecondition, "вердикт ещё готовится")
	ErrJudgeBusy           = apperror.New(apperror.ErrCodePrecondition, "судья ещё работает над предыдущим шагом")
	ErrNothingToRetry      = apperror.New(apperror.ErrCodePrecondition, "нет неудавшегося шага для повтора")
	ErrEmptyEvidence       = apperror.New(apperror.ErrCodeValidation, "доказательства, чувства и потребности не могут быть пустыми")
	ErrEmptyAddendum       = apperror.New(apperror.ErrCodeValidation, "текст дополнения не может быть пустым")
	ErrMissingResolution   = apperror.New(apperror.ErrCodeValidation, "не указан вариант решения")
	ErrUnknownResolution   = apperror.New(apperror.ErrCodeValidation, "такого варианта решения нет")
	ErrSelfServe           = apperror.New(apperror.ErrCodeValidation, "нельзя вызвать в суд самого себя")
	ErrActiveSessionExists = apperror.New(apperror.ErrCodeConflict, "у пары уже есть активная сессия")
	ErrPartnerBusy         = apperror.New(apperror.ErrCodeConflict, "партнёр уже участвует в другой сессии")
	ErrSessionConflict     = apperror.New(apperror.ErrCodeConflict, "сессия изменилась, повторите действие")
)

// JudgeStage - шаг работы ИИ-судьи, который запускается переходом фазы.
type JudgeStage string

const (
	StageAnalysis    JudgeStage = "analysis"
	StageJointMenu   JudgeStage = "joint_menu"
	StageResolutions JudgeStage = "resolutions"
	StageHybrid      JudgeStage = "hybrid"
	StageVerdict     JudgeStage = "verdict"
)

// HybridResolutionID - идентификатор объединённого решения.
const HybridResolutionID = "hybrid"

// PartyState - вклад одного участника в текущий раунд.
type PartyState struct {
	UserID              uuid.UUID  `json:"user_id"`
	Evidence            *string    `json:"evidence"`
	Feelings            *string    `json:"feelings"`
	Needs               *string    `json:"needs"`
	EvidenceSubmittedAt *time.Time `json:"evidence_submitted_at,omitempty"`
	PrimingComplete     bool       `json:"priming_complete"`
	JointReady          bool       `json:"joint_ready"`
	ResolutionPick      *string    `json:"resolution_pick"`
	VerdictAccepted     bool       `json:"verdict_accepted"`
}

func (p *PartyState) HasSubmittedEvidence() bool {
	return p.EvidenceSubmittedAt != nil
}

// ResolutionOption - вариант решения. Содержимое непрозрачно для ядра,
// интерпретируется только идентификатор.
type ResolutionOption struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Addendum - дополнение к вердикту.
type Addendum struct {
	Version   int       `json:"version"`
	AuthorID  uuid.UUID `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// VerdictVersion - одна версия вердикта.
type VerdictVersion struct {
	Version    int             `json:"version"`
	Content    json.RawMessage `json:"content"`
	Settlement bool            `json:"settlement,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// JudgeFailure фиксирует последний неудавшийся вызов судьи.
type JudgeFailure struct {
	Stage   JudgeStage         `json:"stage"`
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
	At      time.Time          `json:"at"`
}

// Session - общее состояние одного спора между двумя партнёрами.
// Все мутации идут через методы, каждый метод сначала проверяет
// предусловие и только потом меняет поля.
type Session struct {
	ID        uuid.UUID             `json:"id"`
	CreatorID uuid.UUID             `json:"creator_id"`
	PartnerID uuid.UUID             `json:"partner_id"`
	CoupleID  uuid.UUID             `json:"couple_id"`
	Phase     valueobject.Phase     `json:"phase"`
	JudgeType valueobject.JudgeType `json:"judge_type"`

	Creator PartyState `json:"creator"`
	Partner PartyState `json:"partner"`

	SettlementRequestedBy *uuid.UUID `json:"settlement_requested"`
	SettlementRequestedAt *time.Time `json:"settlement_requested_at,omitempty"`
	Settled               bool       `json:"settled"`

	Analysis          json.RawMessage    `json:"analysis,omitempty"`
	PrimingContent    json.RawMessage    `json:"priming_content,omitempty"`
	JointMenu         json.RawMessage    `json:"joint_menu,omitempty"`
	ResolutionOptions []ResolutionOption `json:"resolution_options,omitempty"`
	FinalResolution   *ResolutionOption  `json:"final_resolution,omitempty"`
	HybridResolution  *ResolutionOption  `json:"hybrid_resolution,omitempty"`

	Verdict               *VerdictVersion  `json:"verdict,omitempty"`
	VerdictHistory        []VerdictVersion `json:"verdict_history,omitempty"`
	Addenda               []Addendum       `json:"addenda,omitempty"`
	PendingVerdictVersion int              `json:"pending_verdict_version,omitempty"`

	PendingStage JudgeStage    `json:"pending_stage,omitempty"`
	JudgeError   *JudgeFailure `json:"judge_error,omitempty"`

	CaseID *uuid.UUID `json:"case_id,omitempty"`

	Version        int64     `json:"version"`
	PhaseEnteredAt time.Time `json:"phase_entered_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	lapsedSettlement uuid.UUID
}

// NewSession создаёт сессию в фазе PENDING_PARTNER (действие serve).
func NewSession(creatorID, partnerID, coupleID uuid.UUID, judge valueobject.JudgeType) (*Session, error) {
	if creatorID == uuid.Nil || partnerID == uuid.Nil || coupleID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "не указан участник или пара")
	}
	if creatorID == partnerID {
		return nil, ErrSelfServe
	}
	if !judge.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип судьи")
	}

	now := time.Now()
	return &Session{
		ID:             uuid.New(),
		CreatorID:      creatorID,
		PartnerID:      partnerID,
		CoupleID:       coupleID,
		Phase:          valueobject.PhasePendingPartner,
		JudgeType:      judge,
		Creator:        PartyState{UserID: creatorID},
		Partner:        PartyState{UserID: partnerID},
		PhaseEnteredAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsParticipant проверяет, участвует ли пользователь в сессии.
func (s *Session) IsParticipant(userID uuid.UUID) bool {
	return userID == s.CreatorID || userID == s.PartnerID
}

// OtherParty возвращает идентификатор второго участника.
func (s *Session) OtherParty(userID uuid.UUID) uuid.UUID {
	if userID == s.CreatorID {
		return s.PartnerID
	}
	return s.CreatorID
}

// parties возвращает состояние вызывающего и его партнёра.
func (s *Session) parties(userID uuid.UUID) (self *PartyState, other *PartyState, err error) {
	switch userID {
	case s.CreatorID:
		return &s.Creator, &s.Partner, nil
	case s.PartnerID:
		return &s.Partner, &s.Creator, nil
	}
	return nil, nil, ErrNotParticipant
}

// PartyOf возвращает состояние участника или nil.
func (s *Session) PartyOf(userID uuid.UUID) *PartyState {
	self, _, err := s.parties(userID)
	if err != nil {
		return nil
	}
	return self
}

// moveTo меняет фазу строго по таблице переходов.
func (s *Session) moveTo(next valueobject.Phase) error {
	if !s.Phase.CanTransitionTo(next) {
		return ErrWrongPhase
	}
	now := time.Now()
	s.Phase = next
	s.PhaseEnteredAt = now
	s.UpdatedAt = now
	if s.SettlementRequestedBy != nil && !next.AllowsSettlement() {
		if next != valueobject.PhaseIdle {
			s.lapsedSettlement = *s.SettlementRequestedBy
		}
		s.SettlementRequestedBy = nil
		s.SettlementRequestedAt = nil
	}
	return nil
}

// TakeLapsedSettlement возвращает автора предложения мировой, снятого
// последним переходом, и забывает его. uuid.Nil, если ничего не снято.
func (s *Session) TakeLapsedSettlement() uuid.UUID {
	requester := s.lapsedSettlement
	s.lapsedSettlement = uuid.Nil
	return requester
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now()
}

// CurrentVerdictVersion возвращает номер последней готовой версии вердикта.
func (s *Session) CurrentVerdictVersion() int {
	if s.Verdict == nil {
		return 0
	}
	return s.Verdict.Version
}

// FindOption ищет предложенный вариант решения по идентификатору.
func (s *Session) FindOption(id string) *ResolutionOption {
	for i := range s.ResolutionOptions {
		if s.ResolutionOptions[i].ID == id {
			return &s.ResolutionOptions[i]
		}
	}
	return nil
}

// Clone возвращает глубокую копию сессии.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	c.lapsedSettlement = uuid.Nil
	c.Creator = s.Creator.clone()
	c.Partner = s.Partner.clone()
	c.SettlementRequestedBy = cloneUUID(s.SettlementRequestedBy)
	c.SettlementRequestedAt = cloneTime(s.SettlementRequestedAt)
	c.Analysis = cloneRaw(s.Analysis)
	c.PrimingContent = cloneRaw(s.PrimingContent)
	c.JointMenu = cloneRaw(s.JointMenu)
	if s.ResolutionOptions != nil {
		c.ResolutionOptions = make([]ResolutionOption, len(s.ResolutionOptions))
		for i, opt := range s.ResolutionOptions {
			c.ResolutionOptions[i] = opt.clone()
		}
	}
	c.FinalResolution = cloneOption(s.FinalResolution)
	c.HybridResolution = cloneOption(s.HybridResolution)
	if s.Verdict != nil {
		v := s.Verdict.clone()
		c.Verdict = &v
	}
	if s.VerdictHistory != nil {
		c.VerdictHistory = make([]VerdictVersion, len(s.VerdictHistory))
		for i, v := range s.VerdictHistory {
			c.VerdictHistory[i] = v.clone()
		}
	}
	if s.Addenda != nil {
		c.Addenda = append([]Addendum(nil), s.Addenda...)
	}
	if s.JudgeError != nil {
		je := *s.JudgeError
		c.JudgeError = &je
	}
	c.CaseID = cloneUUID(s.CaseID)
	return &c
}

// SnapshotFor возвращает копию для отправки участнику viewerID.
// Пока идёт сбор доказательств, тексты партнёра скрыты.
func (s *Session) SnapshotFor(viewerID uuid.UUID) *Session {
	c := s.Clone()
	if c == nil || c.Phase != valueobject.PhaseEvidence {
		return c
	}

	_, other, err := c.parties(viewerID)
	if err != nil {
		return c
	}
	other.Evidence = nil
	other.Feelings = nil
	other.Needs = nil
	return c
}

func (p PartyState) clone() PartyState {
	c := p
	c.Evidence = cloneString(p.Evidence)
	c.Feelings = cloneString(p.Feelings)
	c.Needs = cloneString(p.Needs)
	c.EvidenceSubmittedAt = cloneTime(p.EvidenceSubmittedAt)
	c.ResolutionPick = cloneString(p.ResolutionPick)
	return c
}

func (o ResolutionOption) clone() ResolutionOption {
	return ResolutionOption{ID: o.ID, Payload: cloneRaw(o.Payload)}
}

func (v VerdictVersion) clone() VerdictVersion {
	c := v
	c.Content = cloneRaw(v.Content)
	return c
}

func cloneOption(o *ResolutionOption) *ResolutionOption {
	if o == nil {
		return nil
	}
	c := o.clone()
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func normalizeText(v string) string {
	return strings.TrimSpace(v)
}
