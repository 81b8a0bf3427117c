package courtroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/goroutine"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
)

var errJudgeUnavailable = apperror.New(apperror.ErrCodeUpstream, "судья недоступен")

// stageFailureMessage - текст ошибки шага, который видят участники.
func stageFailureMessage(stage entity.JudgeStage) string {
	switch stage {
	case entity.StageAnalysis:
		return "Судья не смог разобрать доказательства. Попробуйте ещё раз."
	case entity.StageJointMenu:
		return "Судья не смог подготовить темы для обсуждения. Попробуйте ещё раз."
	case entity.StageResolutions:
		return "Судья не смог предложить решения. Попробуйте ещё раз."
	case entity.StageHybrid:
		return "Судья не смог объединить решения. Попробуйте ещё раз."
	case entity.StageVerdict:
		return "Судья не смог вынести вердикт. Попробуйте ещё раз."
	}
	return "Судья не смог завершить шаг. Попробуйте ещё раз."
}

// startJob запускает шаг судьи в фоне над снимком сессии.
// Результат вернётся через Deliver* или FailJob.
func (uc *UseCase) startJob(s *entity.Session, stage entity.JudgeStage) {
	snapshot := s.Clone()
	uc.jobs.Add(1)
	goroutine.SafeGo(func() {
		defer uc.jobs.Done()
		uc.runJob(snapshot, stage)
	})
}

func (uc *UseCase) runJob(s *entity.Session, stage entity.JudgeStage) {
	log := logger.ForSession(s.ID, s.CoupleID).WithField("stage", stage)

	if uc.judge == nil {
		log.Warn("Судья не настроен")
		uc.failStage(s.ID, stage, errJudgeUnavailable)
		return
	}

	if err := uc.judgeSlots.Acquire(uc.ctx, 1); err != nil {
		log.WithError(err).Warn("Шаг судьи отменён")
		return
	}
	defer uc.judgeSlots.Release(1)

	ctx, cancel := context.WithTimeout(uc.ctx, uc.cfg.JudgeTimeout)
	defer cancel()

	started := time.Now()
	deliver, err := uc.askJudge(ctx, s, stage)
	if err != nil {
		if uc.ctx.Err() != nil {
			log.Warn("Шаг судьи прерван остановкой сервера")
			return
		}
		uc.failStage(s.ID, stage, err)
		return
	}

	log.WithField("duration", time.Since(started)).Info("Судья завершил шаг")
	if err := deliver(uc.ctx); err != nil {
		log.WithError(err).Error("Не удалось сохранить результат судьи")
	}
}

func (uc *UseCase) failStage(sessionID uuid.UUID, stage entity.JudgeStage, cause error) {
	logger.Log.WithField("session_id", sessionID).WithField("stage", stage).
		WithError(cause).Warn("Шаг судьи завершился ошибкой")

	if err := uc.FailJob(uc.ctx, sessionID, stage, stageFailureMessage(stage)); err != nil {
		logger.Log.WithField("session_id", sessionID).WithError(err).Error("Не удалось сохранить ошибку судьи")
	}
}

// askJudge вызывает судью для шага и возвращает доставку результата.
func (uc *UseCase) askJudge(ctx context.Context, s *entity.Session, stage entity.JudgeStage) (func(context.Context) error, error) {
	switch stage {
	case entity.StageAnalysis:
		analysis, err := uc.judge.Analyze(ctx, s)
		if err != nil {
			return nil, err
		}
		priming, err := uc.judge.Prime(ctx, s, analysis)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return uc.DeliverAnalysis(ctx, s.ID, analysis, priming)
		}, nil

	case entity.StageJointMenu:
		menu, err := uc.judge.BuildJointMenu(ctx, s)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return uc.DeliverJointMenu(ctx, s.ID, menu)
		}, nil

	case entity.StageResolutions:
		options, err := uc.judge.ProposeResolutions(ctx, s)
		if err != nil {
			return nil, err
		}
		if len(options) == 0 {
			return nil, errors.New("судья не предложил ни одного решения")
		}
		return func(ctx context.Context) error {
			return uc.DeliverResolutionOptions(ctx, s.ID, options)
		}, nil

	case entity.StageHybrid:
		creatorPick, partnerPick, err := picksOf(s)
		if err != nil {
			return nil, err
		}
		hybrid, err := uc.judge.MergeResolutions(ctx, s, creatorPick, partnerPick)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return uc.DeliverHybrid(ctx, s.ID, hybrid)
		}, nil

	case entity.StageVerdict:
		version := s.PendingVerdictVersion
		content, err := uc.judge.RenderVerdict(ctx, s, version)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return uc.DeliverVerdict(ctx, s.ID, version, content)
		}, nil
	}

	return nil, fmt.Errorf("неизвестный шаг судьи %q", stage)
}

func picksOf(s *entity.Session) (entity.ResolutionOption, entity.ResolutionOption, error) {
	var picks [2]entity.ResolutionOption
	for i, p := range []entity.PartyState{s.Creator, s.Partner} {
		if p.ResolutionPick == nil {
			return entity.ResolutionOption{}, entity.ResolutionOption{}, errors.New("нет выбора участника")
		}
		opt := s.FindOption(*p.ResolutionPick)
		if opt == nil {
			return entity.ResolutionOption{}, entity.ResolutionOption{}, fmt.Errorf("вариант %q не найден", *p.ResolutionPick)
		}
		picks[i] = *opt
	}
	return picks[0], picks[1], nil
}

// DeliverAnalysis применяет анализ и подготовительный материал.
func (uc *UseCase) DeliverAnalysis(ctx context.Context, sessionID uuid.UUID, analysis, priming json.RawMessage) error {
	return uc.deliver(ctx, sessionID, entity.StageAnalysis, func(s *entity.Session) (entity.JudgeStage, bool) {
		return "", s.ApplyAnalysis(sessionID, analysis, priming)
	})
}

// DeliverJointMenu применяет меню совместного обсуждения.
func (uc *UseCase) DeliverJointMenu(ctx context.Context, sessionID uuid.UUID, menu json.RawMessage) error {
	return uc.deliver(ctx, sessionID, entity.StageJointMenu, func(s *entity.Session) (entity.JudgeStage, bool) {
		return "", s.ApplyJointMenu(sessionID, menu)
	})
}

// DeliverResolutionOptions применяет варианты решений.
func (uc *UseCase) DeliverResolutionOptions(ctx context.Context, sessionID uuid.UUID, options []entity.ResolutionOption) error {
	return uc.deliver(ctx, sessionID, entity.StageResolutions, func(s *entity.Session) (entity.JudgeStage, bool) {
		return "", s.ApplyResolutionOptions(sessionID, options)
	})
}

// DeliverHybrid применяет объединённое решение и запускает рендер вердикта.
func (uc *UseCase) DeliverHybrid(ctx context.Context, sessionID uuid.UUID, hybrid entity.ResolutionOption) error {
	return uc.deliver(ctx, sessionID, entity.StageHybrid, func(s *entity.Session) (entity.JudgeStage, bool) {
		return s.ApplyHybrid(sessionID, hybrid)
	})
}

// DeliverVerdict применяет версию вердикта, если именно она ожидается.
func (uc *UseCase) DeliverVerdict(ctx context.Context, sessionID uuid.UUID, version int, content json.RawMessage) error {
	return uc.deliver(ctx, sessionID, entity.StageVerdict, func(s *entity.Session) (entity.JudgeStage, bool) {
		return "", s.ApplyVerdict(sessionID, version, content)
	})
}

// FailJob фиксирует ошибку шага судьи. Фаза сессии не меняется.
func (uc *UseCase) FailJob(ctx context.Context, sessionID uuid.UUID, stage entity.JudgeStage, message string) error {
	return uc.deliver(ctx, sessionID, stage, func(s *entity.Session) (entity.JudgeStage, bool) {
		return "", s.ApplyJudgeFailure(sessionID, stage, message)
	})
}

// deliver применяет результат судьи под мьютексом пары. Результат для
// исчезнувшей сессии или уже пройденной фазы молча отбрасывается.
func (uc *UseCase) deliver(ctx context.Context, sessionID uuid.UUID, stage entity.JudgeStage, apply func(*entity.Session) (entity.JudgeStage, bool)) error {
	current, err := uc.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, entity.ErrSessionNotFound) {
		logger.Log.WithField("session_id", sessionID).WithField("stage", stage).Debug("Результат судьи для завершённой сессии отброшен")
		return nil
	}
	if err != nil {
		return err
	}

	unlock := uc.locks.Lock(current.CoupleID)
	defer unlock()

	s, err := uc.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, entity.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	log := logger.ForSession(s.ID, s.CoupleID).WithField("stage", stage)
	from := s.Phase

	next, applied := apply(s)
	if !applied {
		log.WithField("phase", s.Phase).Debug("Результат судьи отброшен")
		return nil
	}
	if err := uc.sessions.Update(ctx, s); err != nil {
		return err
	}
	if from != s.Phase {
		log.WithField("from", from).WithField("to", s.Phase).Info("Сессия сменила фазу")
	}

	uc.broadcast(s)
	if next != "" {
		uc.startJob(s, next)
	}
	return nil
}
