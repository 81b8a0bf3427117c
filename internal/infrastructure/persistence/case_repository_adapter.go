package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
	"github.com/goodnight000/kittycourt-backend/internal/repository/common"
)

type CaseRepositoryAdapter struct {
	db *sqlx.DB
}

func NewCaseRepositoryAdapter(db *sqlx.DB) *CaseRepositoryAdapter {
	return &CaseRepositoryAdapter{db: db}
}

type caseRow struct {
	ID               uuid.UUID  `db:"id"`
	CoupleID         uuid.UUID  `db:"couple_id"`
	SessionID        uuid.UUID  `db:"session_id"`
	CreatorID        uuid.UUID  `db:"creator_id"`
	PartnerID        uuid.UUID  `db:"partner_id"`
	JudgeType        string     `db:"judge_type"`
	Evidence         []byte     `db:"evidence"`
	Analysis         []byte     `db:"analysis"`
	FinalResolution  []byte     `db:"final_resolution"`
	HybridResolution []byte     `db:"hybrid_resolution"`
	Verdicts         []byte     `db:"verdicts"`
	Addenda          []byte     `db:"addenda"`
	Settled          bool       `db:"settled"`
	Rating           *int16     `db:"rating"`
	RatedBy          *uuid.UUID `db:"rated_by"`
	RatedAt          *time.Time `db:"rated_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

func (row caseRow) toEntity() (*entity.Case, error) {
	c := &entity.Case{
		ID:        row.ID,
		CoupleID:  row.CoupleID,
		SessionID: row.SessionID,
		CreatorID: row.CreatorID,
		PartnerID: row.PartnerID,
		JudgeType: valueobject.JudgeType(row.JudgeType),
		Settled:   row.Settled,
		RatedBy:   row.RatedBy,
		RatedAt:   row.RatedAt,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Analysis) > 0 {
		c.Analysis = json.RawMessage(row.Analysis)
	}
	if row.Rating != nil {
		rating := valueobject.Rating(*row.Rating)
		c.Rating = &rating
	}

	fields := []struct {
		raw  []byte
		dest interface{}
	}{
		{row.Evidence, &c.Evidence},
		{row.FinalResolution, &c.FinalResolution},
		{row.HybridResolution, &c.HybridResolution},
		{row.Verdicts, &c.Verdicts},
		{row.Addenda, &c.Addenda},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "повреждённая запись дела")
		}
	}
	return c, nil
}

func (r *CaseRepositoryAdapter) Create(ctx context.Context, record *entity.Case) error {
	if err := insertCase(ctx, r.db, record); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить дело")
	}
	return nil
}

func insertCase(ctx context.Context, db sqlx.ExecerContext, record *entity.Case) error {
	evidence, err := json.Marshal(record.Evidence)
	if err != nil {
		return err
	}
	verdicts, err := json.Marshal(record.Verdicts)
	if err != nil {
		return err
	}
	addenda, err := json.Marshal(record.Addenda)
	if err != nil {
		return err
	}
	final, err := json.Marshal(record.FinalResolution)
	if err != nil {
		return err
	}
	hybrid, err := json.Marshal(record.HybridResolution)
	if err != nil {
		return err
	}
	var analysis []byte
	if len(record.Analysis) > 0 {
		analysis = record.Analysis
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO court_cases (id, couple_id, session_id, creator_id, partner_id, judge_type,
			evidence, analysis, final_resolution, hybrid_resolution, verdicts, addenda, settled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, record.ID, record.CoupleID, record.SessionID, record.CreatorID, record.PartnerID,
		string(record.JudgeType), evidence, analysis, final, hybrid, verdicts, addenda,
		record.Settled, record.CreatedAt)
	return err
}

func (r *CaseRepositoryAdapter) FindByID(ctx context.Context, id uuid.UUID) (*entity.Case, error) {
	row, err := common.GetByID[caseRow](ctx, r.db, "court_cases", id, entity.ErrCaseNotFound)
	if err != nil {
		if errors.Is(err, entity.ErrCaseNotFound) {
			return nil, err
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить дело")
	}
	return row.toEntity()
}

func (r *CaseRepositoryAdapter) FindLatestByCouple(ctx context.Context, coupleID uuid.UUID) (*entity.Case, error) {
	var row caseRow
	query := `SELECT * FROM court_cases WHERE couple_id = $1 ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, coupleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrCaseNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить дело")
	}
	return row.toEntity()
}

func (r *CaseRepositoryAdapter) UpdateRating(ctx context.Context, record *entity.Case) error {
	var rating *int16
	if record.Rating != nil {
		v := int16(*record.Rating)
		rating = &v
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE court_cases SET rating = $2, rated_by = $3, rated_at = $4 WHERE id = $1
	`, record.ID, rating, record.RatedBy, record.RatedAt)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить оценку")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrCaseNotFound
	}
	return nil
}
