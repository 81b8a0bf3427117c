package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
)

func newSession(t *testing.T, creator, partner, couple uuid.UUID) *entity.Session {
	t.Helper()
	s, err := entity.NewSession(creator, partner, couple, valueobject.JudgeClassic)
	require.NoError(t, err)
	return s
}

func TestMemorySessionRepository_OneActivePerCouple(t *testing.T) {
	repo := NewMemorySessionRepository(NewMemoryCaseRepository())
	ctx := context.Background()
	a, b, couple := uuid.New(), uuid.New(), uuid.New()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newSession(t, a, b, couple))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, entity.ErrActiveSessionExists) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, conflicts)
}

func TestMemorySessionRepository_PartnerBusy(t *testing.T) {
	repo := NewMemorySessionRepository(NewMemoryCaseRepository())
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, newSession(t, a, b, uuid.New())))
	err := repo.Create(ctx, newSession(t, c, b, uuid.New()))
	assert.ErrorIs(t, err, entity.ErrPartnerBusy)
}

func TestMemorySessionRepository_UpdateChecksVersion(t *testing.T) {
	repo := NewMemorySessionRepository(NewMemoryCaseRepository())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	s := newSession(t, a, b, uuid.New())
	require.NoError(t, repo.Create(ctx, s))
	assert.Equal(t, int64(1), s.Version)

	first, err := repo.FindByUser(ctx, a)
	require.NoError(t, err)
	second, err := repo.FindByUser(ctx, b)
	require.NoError(t, err)

	require.NoError(t, first.Accept(b))
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	require.NoError(t, second.Accept(b))
	assert.ErrorIs(t, repo.Update(ctx, second), entity.ErrSessionConflict)

	stored, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PhaseEvidence, stored.Phase)
}

func TestMemorySessionRepository_DeleteFreesSlot(t *testing.T) {
	repo := NewMemorySessionRepository(NewMemoryCaseRepository())
	ctx := context.Background()
	a, b, couple := uuid.New(), uuid.New(), uuid.New()

	s := newSession(t, a, b, couple)
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, repo.Delete(ctx, s.ID))

	_, err := repo.FindByCouple(ctx, couple)
	assert.ErrorIs(t, err, entity.ErrSessionNotFound)
	assert.NoError(t, repo.Create(ctx, newSession(t, b, a, couple)))
}

func TestMemorySessionRepository_ListStale(t *testing.T) {
	repo := NewMemorySessionRepository(NewMemoryCaseRepository())
	ctx := context.Background()

	old := newSession(t, uuid.New(), uuid.New(), uuid.New())
	old.PhaseEnteredAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, newSession(t, uuid.New(), uuid.New(), uuid.New())))

	stale, err := repo.ListStale(ctx, valueobject.PhasePendingPartner, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func TestMemoryCaseRepository_Latest(t *testing.T) {
	repo := NewMemoryCaseRepository()
	ctx := context.Background()
	couple := uuid.New()

	_, err := repo.FindLatestByCouple(ctx, couple)
	assert.ErrorIs(t, err, entity.ErrCaseNotFound)

	first := &entity.Case{ID: uuid.New(), CoupleID: couple}
	second := &entity.Case{ID: uuid.New(), CoupleID: couple}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, &entity.Case{ID: uuid.New(), CoupleID: uuid.New()}))
	require.NoError(t, repo.Create(ctx, second))

	latest, err := repo.FindLatestByCouple(ctx, couple)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}
