package courtroom

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
)

// RateVerdict сохраняет оценку вердикта завершённого дела. Без case_id
// оценивается последнее дело пары, неизвестный или чужой case_id отклоняется.
func (uc *UseCase) RateVerdict(ctx context.Context, id Identity, in RatingInput) (*StateSync, error) {
	if id.CoupleID == uuid.Nil {
		return nil, ErrNoCouple
	}
	rating, err := valueobject.NewRating(in.Rating)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(id.CoupleID)
	defer unlock()

	record, err := uc.resolveCase(ctx, id, in.CaseID)
	if err != nil {
		return nil, err
	}
	if err := record.Rate(id.UserID, rating); err != nil {
		return nil, err
	}
	if err := uc.cases.UpdateRating(ctx, record); err != nil {
		return nil, err
	}

	logger.Log.WithField("case_id", record.ID).WithField("rating", int(rating)).Info("Вердикт оценён")

	state, err := uc.FetchState(ctx, id)
	if err != nil {
		return nil, err
	}
	state.Rating = &RatingReceipt{CaseID: record.ID, Rating: int(rating)}
	return state, nil
}

func (uc *UseCase) resolveCase(ctx context.Context, id Identity, caseID string) (*entity.Case, error) {
	if caseID = strings.TrimSpace(caseID); caseID != "" {
		parsed, err := uuid.Parse(caseID)
		if err != nil {
			return nil, entity.ErrMissingCase
		}
		record, err := uc.cases.FindByID(ctx, parsed)
		switch {
		case errors.Is(err, entity.ErrCaseNotFound):
			return nil, entity.ErrMissingCase
		case err != nil:
			return nil, err
		case record.CoupleID != id.CoupleID:
			return nil, entity.ErrMissingCase
		}
		return record, nil
	}

	record, err := uc.cases.FindLatestByCouple(ctx, id.CoupleID)
	if errors.Is(err, entity.ErrCaseNotFound) {
		return nil, entity.ErrMissingCase
	}
	return record, err
}

// GetCase возвращает архивное дело пары. Чужое дело неотличимо от несуществующего.
func (uc *UseCase) GetCase(ctx context.Context, id Identity, caseID uuid.UUID) (*entity.Case, error) {
	if id.CoupleID == uuid.Nil {
		return nil, ErrNoCouple
	}
	record, err := uc.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if record.CoupleID != id.CoupleID {
		return nil, entity.ErrCaseNotFound
	}
	return record, nil
}
