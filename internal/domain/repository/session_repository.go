package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

// SessionRepository хранит только активные сессии.
// Закрытые, отменённые и истёкшие сессии удаляются.
type SessionRepository interface {
	// Create сохраняет новую сессию атомарно с проверкой слотов:
	// entity.ErrActiveSessionExists, если у пары уже есть активная сессия,
	// entity.ErrPartnerBusy, если кто-то из участников занят в другой.
	Create(ctx context.Context, session *entity.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	FindByCouple(ctx context.Context, coupleID uuid.UUID) (*entity.Session, error)
	FindByUser(ctx context.Context, userID uuid.UUID) (*entity.Session, error)
	// Update сохраняет сессию, только если сохранённая версия совпадает
	// с session.Version, и увеличивает версию.
	Update(ctx context.Context, session *entity.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Archive удаляет закрытую сессию и сохраняет дело одной операцией.
	Archive(ctx context.Context, session *entity.Session, record *entity.Case) error
	// ListStale возвращает сессии, находящиеся в фазе phase с момента до before.
	ListStale(ctx context.Context, phase valueobject.Phase, before time.Time) ([]*entity.Session, error)
	Ping(ctx context.Context) error
}
