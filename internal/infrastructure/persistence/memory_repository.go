package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

// MemorySessionRepository - хранилище сессий в памяти процесса.
// Используется, когда база данных не настроена, и в тестах.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*entity.Session
	couples  map[uuid.UUID]uuid.UUID
	members  map[uuid.UUID]uuid.UUID
	cases    *MemoryCaseRepository
}

func NewMemorySessionRepository(cases *MemoryCaseRepository) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[uuid.UUID]*entity.Session),
		couples:  make(map[uuid.UUID]uuid.UUID),
		members:  make(map[uuid.UUID]uuid.UUID),
		cases:    cases,
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.couples[session.CoupleID]; ok {
		return entity.ErrActiveSessionExists
	}
	if _, ok := r.members[session.CreatorID]; ok {
		return entity.ErrActiveSessionExists
	}
	if _, ok := r.members[session.PartnerID]; ok {
		return entity.ErrPartnerBusy
	}

	session.Version = 1
	r.sessions[session.ID] = session.Clone()
	r.couples[session.CoupleID] = session.ID
	r.members[session.CreatorID] = session.ID
	r.members[session.PartnerID] = session.ID
	return nil
}

func (r *MemorySessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemorySessionRepository) FindByCouple(ctx context.Context, coupleID uuid.UUID) (*entity.Session, error) {
	r.mu.RLock()
	id, ok := r.couples[coupleID]
	r.mu.RUnlock()
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *MemorySessionRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*entity.Session, error) {
	r.mu.RLock()
	id, ok := r.members[userID]
	r.mu.RUnlock()
	if !ok {
		return nil, entity.ErrSessionNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *MemorySessionRepository) Update(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[session.ID]
	if !ok {
		return entity.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return entity.ErrSessionConflict
	}

	session.Version++
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.remove(id)
	return nil
}

func (r *MemorySessionRepository) Archive(ctx context.Context, session *entity.Session, record *entity.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[session.ID]
	if !ok {
		return entity.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return entity.ErrSessionConflict
	}
	if err := r.cases.Create(ctx, record); err != nil {
		return err
	}

	session.Version++
	r.remove(session.ID)
	return nil
}

func (r *MemorySessionRepository) ListStale(ctx context.Context, phase valueobject.Phase, before time.Time) ([]*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*entity.Session
	for _, s := range r.sessions {
		if s.Phase == phase && s.PhaseEnteredAt.Before(before) {
			result = append(result, s.Clone())
		}
	}
	return result, nil
}

func (r *MemorySessionRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemorySessionRepository) remove(id uuid.UUID) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	delete(r.couples, s.CoupleID)
	delete(r.members, s.CreatorID)
	delete(r.members, s.PartnerID)
}

// MemoryCaseRepository - архив дел в памяти процесса.
type MemoryCaseRepository struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]*entity.Case
	order []uuid.UUID
}

func NewMemoryCaseRepository() *MemoryCaseRepository {
	return &MemoryCaseRepository{cases: make(map[uuid.UUID]*entity.Case)}
}

func (r *MemoryCaseRepository) Create(ctx context.Context, record *entity.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *record
	r.cases[record.ID] = &c
	r.order = append(r.order, record.ID)
	return nil
}

func (r *MemoryCaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, entity.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCaseRepository) FindLatestByCouple(ctx context.Context, coupleID uuid.UUID) (*entity.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		c := r.cases[r.order[i]]
		if c.CoupleID == coupleID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, entity.ErrCaseNotFound
}

func (r *MemoryCaseRepository) UpdateRating(ctx context.Context, record *entity.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[record.ID]
	if !ok {
		return entity.ErrCaseNotFound
	}
	c.Rating = record.Rating
	c.RatedBy = record.RatedBy
	c.RatedAt = record.RatedAt
	return nil
}
