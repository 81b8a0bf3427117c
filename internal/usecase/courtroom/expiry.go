package courtroom

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
)

// ExpireStale переводит в IDLE сессии, застрявшие в PENDING_PARTNER
// или EVIDENCE дольше настроенного срока. Возвращает число истёкших.
func (uc *UseCase) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	policies := []struct {
		phase valueobject.Phase
		ttl   time.Duration
	}{
		{valueobject.PhasePendingPartner, uc.cfg.PendingTTL},
		{valueobject.PhaseEvidence, uc.cfg.EvidenceTTL},
	}

	expired := 0
	for _, p := range policies {
		if p.ttl <= 0 {
			continue
		}
		stale, err := uc.sessions.ListStale(ctx, p.phase, now.Add(-p.ttl))
		if err != nil {
			return expired, err
		}
		for _, candidate := range stale {
			ok, err := uc.expire(ctx, candidate.ID, candidate.CoupleID, p.phase, now.Add(-p.ttl))
			if err != nil {
				logger.ForSession(candidate.ID, candidate.CoupleID).WithError(err).Warn("Не удалось завершить устаревшую сессию")
				continue
			}
			if ok {
				expired++
			}
		}
	}
	return expired, nil
}

// expire перечитывает сессию под мьютексом пары: за время обхода
// участники могли продвинуть её дальше.
func (uc *UseCase) expire(ctx context.Context, sessionID, coupleID uuid.UUID, phase valueobject.Phase, before time.Time) (bool, error) {
	unlock := uc.locks.Lock(coupleID)
	defer unlock()

	s, err := uc.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, entity.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.Phase != phase || !s.PhaseEnteredAt.Before(before) {
		return false, nil
	}

	if err := s.Expire(); err != nil {
		return false, err
	}
	if err := uc.sessions.Delete(ctx, s.ID); err != nil {
		return false, err
	}

	logger.ForSession(s.ID, s.CoupleID).WithField("phase", phase).Info("Сессия истекла")
	uc.broadcast(s)
	return true, nil
}

// RunExpiry периодически вызывает ExpireStale до отмены ctx.
func (uc *UseCase) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := uc.ExpireStale(ctx, now)
			if err != nil {
				logger.Log.WithError(err).Error("Ошибка проверки устаревших сессий")
				continue
			}
			if n > 0 {
				logger.Log.WithField("count", n).Info("Устаревшие сессии завершены")
			}
		}
	}
}
