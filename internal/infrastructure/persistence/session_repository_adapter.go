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

// Имена ограничений из migrations/001_courtroom.sql.
const (
	constraintSessionCouple = "court_sessions_couple_id_key"
	constraintMemberUser    = "court_session_members_pkey"
)

// SessionRepositoryAdapter хранит активную сессию документом JSONB.
// Участники дублируются в court_session_members, первичный ключ по
// user_id не даёт одному пользователю быть в двух сессиях сразу.
type SessionRepositoryAdapter struct {
	db *sqlx.DB
}

func NewSessionRepositoryAdapter(db *sqlx.DB) *SessionRepositoryAdapter {
	return &SessionRepositoryAdapter{db: db}
}

type sessionRow struct {
	ID             uuid.UUID `db:"id"`
	CoupleID       uuid.UUID `db:"couple_id"`
	CreatorID      uuid.UUID `db:"creator_id"`
	PartnerID      uuid.UUID `db:"partner_id"`
	Phase          string    `db:"phase"`
	State          []byte    `db:"state"`
	Version        int64     `db:"version"`
	PhaseEnteredAt time.Time `db:"phase_entered_at"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (row sessionRow) toEntity() (*entity.Session, error) {
	var s entity.Session
	if err := json.Unmarshal(row.State, &s); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "повреждённое состояние сессии")
	}
	// Колонки phase и phase_entered_at индексируются для истечения и главнее документа.
	phase, err := valueobject.NewPhase(row.Phase)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "повреждённое состояние сессии")
	}
	s.Phase = phase
	s.PhaseEnteredAt = row.PhaseEnteredAt
	s.Version = row.Version
	return &s, nil
}

const sessionColumns = `s.id, s.couple_id, s.creator_id, s.partner_id, s.phase, s.state, s.version,
	s.phase_entered_at, s.created_at, s.updated_at`

func (r *SessionRepositoryAdapter) Create(ctx context.Context, session *entity.Session) error {
	session.Version = 1
	state, err := json.Marshal(session)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сериализовать сессию")
	}

	err = common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO court_sessions (id, couple_id, creator_id, partner_id, phase, state, version,
				phase_entered_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, session.ID, session.CoupleID, session.CreatorID, session.PartnerID, string(session.Phase),
			state, session.Version, session.PhaseEnteredAt, session.CreatedAt, session.UpdatedAt)
		if err != nil {
			if constraint, ok := common.UniqueViolation(err); ok && constraint == constraintSessionCouple {
				return entity.ErrActiveSessionExists
			}
			return err
		}

		members := []struct {
			userID uuid.UUID
			busy   error
		}{
			{session.CreatorID, entity.ErrActiveSessionExists},
			{session.PartnerID, entity.ErrPartnerBusy},
		}
		for _, m := range members {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO court_session_members (user_id, session_id) VALUES ($1, $2)`,
				m.userID, session.ID)
			if err != nil {
				if constraint, ok := common.UniqueViolation(err); ok && constraint == constraintMemberUser {
					return m.busy
				}
				return err
			}
		}
		return nil
	})
	return wrapSessionErr(err, "не удалось создать сессию")
}

func (r *SessionRepositoryAdapter) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM court_sessions s WHERE s.id = $1`, id)
}

func (r *SessionRepositoryAdapter) FindByCouple(ctx context.Context, coupleID uuid.UUID) (*entity.Session, error) {
	return r.findOne(ctx, `SELECT `+sessionColumns+` FROM court_sessions s WHERE s.couple_id = $1`, coupleID)
}

func (r *SessionRepositoryAdapter) FindByUser(ctx context.Context, userID uuid.UUID) (*entity.Session, error) {
	return r.findOne(ctx, `
		SELECT `+sessionColumns+`
		FROM court_sessions s
		JOIN court_session_members m ON m.session_id = s.id
		WHERE m.user_id = $1
	`, userID)
}

func (r *SessionRepositoryAdapter) findOne(ctx context.Context, query string, arg interface{}) (*entity.Session, error) {
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrSessionNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить сессию")
	}
	return row.toEntity()
}

func (r *SessionRepositoryAdapter) Update(ctx context.Context, session *entity.Session) error {
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockVersion(ctx, tx, session); err != nil {
			return err
		}

		next := session.Clone()
		next.Version++
		state, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE court_sessions
			SET phase = $2, state = $3, version = $4, phase_entered_at = $5, updated_at = $6
			WHERE id = $1
		`, session.ID, string(next.Phase), state, next.Version, next.PhaseEnteredAt, next.UpdatedAt)
		return err
	})
	if err != nil {
		return wrapSessionErr(err, "не удалось сохранить сессию")
	}
	session.Version++
	return nil
}

func (r *SessionRepositoryAdapter) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM court_sessions WHERE id = $1`, id); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось удалить сессию")
	}
	return nil
}

func (r *SessionRepositoryAdapter) Archive(ctx context.Context, session *entity.Session, record *entity.Case) error {
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockVersion(ctx, tx, session); err != nil {
			return err
		}
		if err := insertCase(ctx, tx, record); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM court_sessions WHERE id = $1`, session.ID)
		return err
	})
	if err != nil {
		return wrapSessionErr(err, "не удалось архивировать сессию")
	}
	session.Version++
	return nil
}

func (r *SessionRepositoryAdapter) ListStale(ctx context.Context, phase valueobject.Phase, before time.Time) ([]*entity.Session, error) {
	var rows []sessionRow
	query := `SELECT ` + sessionColumns + ` FROM court_sessions s WHERE s.phase = $1 AND s.phase_entered_at < $2`
	if err := r.db.SelectContext(ctx, &rows, query, string(phase), before); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить устаревшие сессии")
	}

	result := make([]*entity.Session, 0, len(rows))
	for _, row := range rows {
		s, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func (r *SessionRepositoryAdapter) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// lockVersion блокирует строку сессии и сверяет версию.
func lockVersion(ctx context.Context, tx *sqlx.Tx, session *entity.Session) error {
	var version int64
	err := tx.GetContext(ctx, &version, `SELECT version FROM court_sessions WHERE id = $1 FOR UPDATE`, session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.ErrSessionNotFound
		}
		return err
	}
	if version != session.Version {
		return entity.ErrSessionConflict
	}
	return nil
}

func wrapSessionErr(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, message)
}
