package courtroom

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
	"github.com/goodnight000/kittycourt-backend/internal/validation"
)

// ActionType - действие участника сессии.
type ActionType string

const (
	ActionServe                   ActionType = "serve"
	ActionAccept                  ActionType = "accept"
	ActionDismiss                 ActionType = "dismiss"
	ActionCancel                  ActionType = "cancel"
	ActionSubmitEvidence          ActionType = "submit_evidence"
	ActionMarkPrimingComplete     ActionType = "mark_priming_complete"
	ActionMarkJointReady          ActionType = "mark_joint_ready"
	ActionSubmitResolutionPick    ActionType = "submit_resolution_pick"
	ActionAcceptPartnerResolution ActionType = "accept_partner_resolution"
	ActionRequestHybrid           ActionType = "request_hybrid_resolution"
	ActionRequestSettlement       ActionType = "request_settlement"
	ActionAcceptSettlement        ActionType = "accept_settlement"
	ActionDeclineSettlement       ActionType = "decline_settlement"
	ActionSubmitAddendum          ActionType = "submit_addendum"
	ActionAcceptVerdict           ActionType = "accept_verdict"
	ActionSubmitVerdictRating     ActionType = "submit_verdict_rating"
	ActionRetryJudge              ActionType = "retry_judge"
	ActionFetchState              ActionType = "fetch_state"
)

// ParseActionType принимает имя действия как в URL, так и в сокет-сообщении.
func ParseActionType(name string) (ActionType, error) {
	a := ActionType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_"))
	switch a {
	case ActionServe, ActionAccept, ActionDismiss, ActionCancel, ActionSubmitEvidence,
		ActionMarkPrimingComplete, ActionMarkJointReady, ActionSubmitResolutionPick,
		ActionAcceptPartnerResolution, ActionRequestHybrid, ActionRequestSettlement,
		ActionAcceptSettlement, ActionDeclineSettlement, ActionSubmitAddendum,
		ActionAcceptVerdict, ActionSubmitVerdictRating, ActionRetryJudge, ActionFetchState:
		return a, nil
	}
	return "", ErrUnknownAction
}

// Action - действие с необработанными данными.
type Action struct {
	Type    ActionType
	Payload json.RawMessage
}

type ServeInput struct {
	PartnerID string `json:"partner_id"`
	JudgeType string `json:"judge_type"`
}

type EvidenceInput struct {
	Evidence string `json:"evidence"`
	Feelings string `json:"feelings"`
	Needs    string `json:"needs"`
}

type ResolutionInput struct {
	ResolutionID string `json:"resolution_id"`
}

type AddendumInput struct {
	Text string `json:"text"`
}

type RatingInput struct {
	Rating int    `json:"rating"`
	CaseID string `json:"case_id"`
}

// outcome - последствия успешной мутации, которые use case
// выполняет после сохранения.
type outcome struct {
	stage       entity.JudgeStage
	closed      bool
	noticeTo    uuid.UUID
	noticeEvent string
}

type mutation func(s *entity.Session, userID uuid.UUID) (outcome, error)

// Dispatch выполняет действие от имени вызывающего и возвращает его
// состояние после действия. Отклонённое действие не меняет сессию.
func (uc *UseCase) Dispatch(ctx context.Context, id Identity, action Action) (*StateSync, error) {
	if id.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}

	switch action.Type {
	case ActionFetchState:
		return uc.FetchState(ctx, id)
	case ActionServe:
		var in ServeInput
		if err := decodePayload(action.Payload, &in); err != nil {
			return nil, err
		}
		return uc.Serve(ctx, id, in)
	case ActionSubmitVerdictRating:
		var in RatingInput
		if err := decodePayload(action.Payload, &in); err != nil {
			return nil, err
		}
		return uc.RateVerdict(ctx, id, in)
	}

	m, err := mutationFor(action)
	if err != nil {
		return nil, err
	}
	return uc.mutate(ctx, id, action.Type, m)
}

func mutationFor(action Action) (mutation, error) {
	switch action.Type {
	case ActionAccept:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			return outcome{}, s.Accept(userID)
		}, nil

	case ActionDismiss:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			if err := s.Dismiss(userID); err != nil {
				return outcome{}, err
			}
			return outcome{noticeTo: s.CreatorID, noticeEvent: EventSessionDismissed}, nil
		}, nil

	case ActionCancel:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			return outcome{}, s.Cancel(userID)
		}, nil

	case ActionSubmitEvidence:
		var in EvidenceInput
		if err := decodePayload(action.Payload, &in); err != nil {
			return nil, err
		}
		if err := validation.ValidateEvidence(in.Evidence, in.Feelings, in.Needs); err != nil {
			return nil, invalidInput(err)
		}
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			stage, err := s.SubmitEvidence(userID, in.Evidence, in.Feelings, in.Needs)
			return outcome{stage: stage}, err
		}, nil

	case ActionMarkPrimingComplete:
		return stageMutation((*entity.Session).MarkPrimingComplete), nil

	case ActionMarkJointReady:
		return stageMutation((*entity.Session).MarkJointReady), nil

	case ActionSubmitResolutionPick:
		var in ResolutionInput
		if err := decodePayload(action.Payload, &in); err != nil {
			return nil, err
		}
		if err := validation.ValidateResolutionID(in.ResolutionID); err != nil {
			return nil, invalidInput(err)
		}
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			stage, err := s.SubmitResolutionPick(userID, in.ResolutionID)
			return outcome{stage: stage}, err
		}, nil

	case ActionAcceptPartnerResolution:
		return stageMutation((*entity.Session).AcceptPartnerResolution), nil

	case ActionRequestHybrid:
		return stageMutation((*entity.Session).RequestHybridResolution), nil

	case ActionRequestSettlement:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			return outcome{}, s.RequestSettlement(userID)
		}, nil

	case ActionAcceptSettlement:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			return outcome{}, s.AcceptSettlement(userID)
		}, nil

	case ActionDeclineSettlement:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			requester, err := s.DeclineSettlement(userID)
			if err != nil {
				return outcome{}, err
			}
			return outcome{noticeTo: requester, noticeEvent: EventSettlementDeclined}, nil
		}, nil

	case ActionSubmitAddendum:
		var in AddendumInput
		if err := decodePayload(action.Payload, &in); err != nil {
			return nil, err
		}
		if err := validation.ValidateAddendum(in.Text); err != nil {
			return nil, invalidInput(err)
		}
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			stage, err := s.SubmitAddendum(userID, in.Text)
			return outcome{stage: stage}, err
		}, nil

	case ActionAcceptVerdict:
		return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
			closed, err := s.AcceptVerdict(userID)
			return outcome{closed: closed}, err
		}, nil

	case ActionRetryJudge:
		return stageMutation((*entity.Session).RetryJudge), nil
	}

	return nil, ErrUnknownAction
}

func stageMutation(fn func(*entity.Session, uuid.UUID) (entity.JudgeStage, error)) mutation {
	return func(s *entity.Session, userID uuid.UUID) (outcome, error) {
		stage, err := fn(s, userID)
		return outcome{stage: stage}, err
	}
}

func invalidInput(err error) error {
	return apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
}

func decodePayload(payload json.RawMessage, dst interface{}) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// Serve вручает повестку партнёру и создаёт сессию в PENDING_PARTNER.
func (uc *UseCase) Serve(ctx context.Context, id Identity, in ServeInput) (*StateSync, error) {
	if id.CoupleID == uuid.Nil {
		return nil, ErrNoCouple
	}
	partnerID, err := uuid.Parse(strings.TrimSpace(in.PartnerID))
	if err != nil {
		return nil, ErrInvalidPartnerID
	}
	if id.PartnerID != uuid.Nil && partnerID != id.PartnerID {
		return nil, ErrNotYourPartner
	}
	judge, err := valueobject.NewJudgeType(in.JudgeType)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(id.CoupleID)
	defer unlock()

	s, err := entity.NewSession(id.UserID, partnerID, id.CoupleID, judge)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Create(ctx, s); err != nil {
		return nil, err
	}

	logger.ForSession(s.ID, s.CoupleID).WithField("judge_type", s.JudgeType).Info("Повестка вручена")
	uc.broadcast(s)
	return syncFor(s, id.UserID), nil
}

// FetchState возвращает текущее состояние вызывающего без изменений.
func (uc *UseCase) FetchState(ctx context.Context, id Identity) (*StateSync, error) {
	if id.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	s, err := uc.sessions.FindByUser(ctx, id.UserID)
	if errors.Is(err, entity.ErrSessionNotFound) {
		return syncFor(nil, id.UserID), nil
	}
	if err != nil {
		return nil, err
	}
	return syncFor(s, id.UserID), nil
}

// mutate сериализует действие по паре: читает свежую сессию, применяет
// переход, сохраняет, рассылает и запускает шаг судьи.
func (uc *UseCase) mutate(ctx context.Context, id Identity, action ActionType, m mutation) (*StateSync, error) {
	if id.CoupleID == uuid.Nil {
		return nil, ErrNoCouple
	}

	unlock := uc.locks.Lock(id.CoupleID)
	defer unlock()

	s, err := uc.sessions.FindByUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	if s.CoupleID != id.CoupleID {
		return nil, entity.ErrNotParticipant
	}

	log := logger.ForSession(s.ID, s.CoupleID).WithField("action", action)
	from := s.Phase

	out, err := m(s, id.UserID)
	if err != nil {
		log.WithError(err).Debug("Действие отклонено")
		return nil, err
	}
	// Переход за окно мировой снимает висящее предложение, автору уходит отказ.
	if requester := s.TakeLapsedSettlement(); requester != uuid.Nil && out.noticeTo == uuid.Nil {
		out.noticeTo = requester
		out.noticeEvent = EventSettlementDeclined
	}
	if err := uc.persist(ctx, s, out.closed); err != nil {
		return nil, err
	}
	if from != s.Phase {
		log.WithField("from", from).WithField("to", s.Phase).Info("Сессия сменила фазу")
	}

	uc.broadcast(s)
	if out.noticeTo != uuid.Nil {
		uc.send(out.noticeTo, out.noticeEvent, Notice{ByUserID: id.UserID, At: s.UpdatedAt})
	}
	if out.stage != "" {
		uc.startJob(s, out.stage)
	}
	return syncFor(s, id.UserID), nil
}

// persist сохраняет сессию: закрытая уходит в архив, вернувшаяся в IDLE
// удаляется, остальные обновляются с проверкой версии.
func (uc *UseCase) persist(ctx context.Context, s *entity.Session, closed bool) error {
	switch {
	case closed:
		record, err := entity.NewCaseFromSession(s)
		if err != nil {
			return err
		}
		s.CaseID = &record.ID
		return uc.sessions.Archive(ctx, s, record)
	case s.Phase == valueobject.PhaseIdle:
		return uc.sessions.Delete(ctx, s.ID)
	default:
		return uc.sessions.Update(ctx, s)
	}
}
