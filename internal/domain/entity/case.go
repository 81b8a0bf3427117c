package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
)

var (
	ErrCaseNotFound   = apperror.New(apperror.ErrCodeNotFound, "дело не найдено")
	ErrMissingCase    = apperror.New(apperror.ErrCodeNotFound, "не найдено завершённое дело для оценки")
	ErrSessionNotDone = apperror.New(apperror.ErrCodePrecondition, "сессия ещё не завершена")
)

// CaseEvidence - доказательства одного участника в архиве.
type CaseEvidence struct {
	UserID   uuid.UUID `json:"user_id"`
	Evidence string    `json:"evidence"`
	Feelings string    `json:"feelings"`
	Needs    string    `json:"needs"`
}

// Case - архивная запись завершённой сессии. Только для чтения,
// кроме оценки вердикта.
type Case struct {
	ID        uuid.UUID             `json:"id"`
	CoupleID  uuid.UUID             `json:"couple_id"`
	SessionID uuid.UUID             `json:"session_id"`
	CreatorID uuid.UUID             `json:"creator_id"`
	PartnerID uuid.UUID             `json:"partner_id"`
	JudgeType valueobject.JudgeType `json:"judge_type"`

	Evidence         []CaseEvidence    `json:"evidence"`
	Analysis         json.RawMessage   `json:"analysis,omitempty"`
	FinalResolution  *ResolutionOption `json:"final_resolution,omitempty"`
	HybridResolution *ResolutionOption `json:"hybrid_resolution,omitempty"`
	Verdicts         []VerdictVersion  `json:"verdicts"`
	Addenda          []Addendum        `json:"addenda"`
	Settled          bool              `json:"settled"`

	Rating  *valueobject.Rating `json:"rating,omitempty"`
	RatedBy *uuid.UUID          `json:"rated_by,omitempty"`
	RatedAt *time.Time          `json:"rated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewCaseFromSession архивирует закрытую сессию.
func NewCaseFromSession(s *Session) (*Case, error) {
	if s == nil || s.Phase != valueobject.PhaseClosed {
		return nil, ErrSessionNotDone
	}

	snapshot := s.Clone()
	c := &Case{
		ID:               uuid.New(),
		CoupleID:         snapshot.CoupleID,
		SessionID:        snapshot.ID,
		CreatorID:        snapshot.CreatorID,
		PartnerID:        snapshot.PartnerID,
		JudgeType:        snapshot.JudgeType,
		Analysis:         snapshot.Analysis,
		FinalResolution:  snapshot.FinalResolution,
		HybridResolution: snapshot.HybridResolution,
		Verdicts:         snapshot.VerdictHistory,
		Addenda:          snapshot.Addenda,
		Settled:          snapshot.Settled,
		CreatedAt:        time.Now(),
	}
	for _, party := range []PartyState{snapshot.Creator, snapshot.Partner} {
		if !party.HasSubmittedEvidence() {
			continue
		}
		c.Evidence = append(c.Evidence, CaseEvidence{
			UserID:   party.UserID,
			Evidence: derefString(party.Evidence),
			Feelings: derefString(party.Feelings),
			Needs:    derefString(party.Needs),
		})
	}
	if c.Verdicts == nil {
		c.Verdicts = []VerdictVersion{}
	}
	if c.Addenda == nil {
		c.Addenda = []Addendum{}
	}
	return c, nil
}

// Rate выставляет оценку вердикту. Повторная оценка перезаписывает предыдущую.
func (c *Case) Rate(userID uuid.UUID, rating valueobject.Rating) error {
	if userID != c.CreatorID && userID != c.PartnerID {
		return ErrNotParticipant
	}
	if rating < valueobject.MinRating || rating > valueobject.MaxRating {
		return apperror.New(apperror.ErrCodeValidation, "оценка должна быть от 1 до 5")
	}

	now := time.Now()
	rater := userID
	c.Rating = &rating
	c.RatedBy = &rater
	c.RatedAt = &now
	return nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
