package courtroom

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/repository"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
)

// События, которые сервер отправляет клиентам.
const (
	EventStateSync          = "state_sync"
	EventSettlementDeclined = "settlement_declined"
	EventSessionDismissed   = "session_dismissed"
)

var (
	ErrNoCouple         = apperror.New(apperror.ErrCodeForbidden, "у вас нет связанного партнёра")
	ErrNotYourPartner   = apperror.New(apperror.ErrCodeForbidden, "вызвать в суд можно только своего партнёра")
	ErrUnknownAction    = apperror.New(apperror.ErrCodeValidation, "неизвестное действие")
	ErrInvalidPayload   = apperror.New(apperror.ErrCodeValidation, "некорректные данные действия")
	ErrInvalidPartnerID = apperror.New(apperror.ErrCodeValidation, "некорректный partner_id")
)

// Identity - аутентифицированный вызывающий вместе со связкой пары.
type Identity struct {
	UserID    uuid.UUID
	PartnerID uuid.UUID
	CoupleID  uuid.UUID
}

// StateSync - состояние для конкретного получателя. Одинаково для сокета и REST.
type StateSync struct {
	Phase     valueobject.Phase     `json:"phase"`
	ViewPhase valueobject.ViewPhase `json:"view_phase"`
	Session   *entity.Session       `json:"session"`
	Rating    *RatingReceipt        `json:"rating,omitempty"`
}

// RatingReceipt подтверждает сохранённую оценку.
type RatingReceipt struct {
	CaseID uuid.UUID `json:"case_id"`
	Rating int       `json:"rating"`
}

// Notice - разовое уведомление, не входящее в состояние сессии.
type Notice struct {
	ByUserID uuid.UUID `json:"by_user_id"`
	At       time.Time `json:"at"`
}

// Notifier доставляет события подключённым клиентам пользователя.
type Notifier interface {
	SendToUser(userID uuid.UUID, event string, data interface{})
}

// Judge - внешний ИИ-судья. Каждый метод получает снимок сессии.
type Judge interface {
	Analyze(ctx context.Context, s *entity.Session) (json.RawMessage, error)
	Prime(ctx context.Context, s *entity.Session, analysis json.RawMessage) (json.RawMessage, error)
	BuildJointMenu(ctx context.Context, s *entity.Session) (json.RawMessage, error)
	ProposeResolutions(ctx context.Context, s *entity.Session) ([]entity.ResolutionOption, error)
	MergeResolutions(ctx context.Context, s *entity.Session, creatorPick, partnerPick entity.ResolutionOption) (entity.ResolutionOption, error)
	RenderVerdict(ctx context.Context, s *entity.Session, version int) (json.RawMessage, error)
}

// Config - политика устаревания и ограничения для вызовов судьи.
type Config struct {
	PendingTTL          time.Duration
	EvidenceTTL         time.Duration
	MaxConcurrentJudges int64
	JudgeTimeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJudges <= 0 {
		c.MaxConcurrentJudges = 4
	}
	if c.JudgeTimeout <= 0 {
		c.JudgeTimeout = 90 * time.Second
	}
	return c
}

// UseCase - хранилище сессий суда: сериализует действия пары,
// запускает судью и рассылает состояние обоим участникам.
type UseCase struct {
	sessions repository.SessionRepository
	cases    repository.CaseRepository
	judge    Judge
	cfg      Config

	notifierMu sync.RWMutex
	notifier   Notifier

	locks      *coupleLocks
	judgeSlots *semaphore.Weighted
	jobs       sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// New создаёт use case. judge может быть nil: тогда шаги судьи
// сразу завершаются ошибкой, которую видят участники.
func New(sessions repository.SessionRepository, cases repository.CaseRepository, judge Judge, cfg Config) *UseCase {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &UseCase{
		sessions:   sessions,
		cases:      cases,
		judge:      judge,
		cfg:        cfg,
		locks:      newCoupleLocks(),
		judgeSlots: semaphore.NewWeighted(cfg.MaxConcurrentJudges),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetNotifier подключает транспорт для рассылки событий.
func (uc *UseCase) SetNotifier(n Notifier) {
	uc.notifierMu.Lock()
	uc.notifier = n
	uc.notifierMu.Unlock()
}

// Wait дожидается завершения запущенных вызовов судьи.
func (uc *UseCase) Wait() {
	uc.jobs.Wait()
}

// Close отменяет незавершённые вызовы судьи и ждёт их выхода.
func (uc *UseCase) Close() {
	uc.cancel()
	uc.jobs.Wait()
}

// Ping проверяет доступность хранилища.
func (uc *UseCase) Ping(ctx context.Context) error {
	return uc.sessions.Ping(ctx)
}

// syncFor строит состояние для получателя userID. Пустая или
// завершённая без архива сессия отдаётся как IDLE без сессии.
func syncFor(s *entity.Session, userID uuid.UUID) *StateSync {
	if s == nil || s.Phase == valueobject.PhaseIdle {
		return &StateSync{
			Phase:     valueobject.PhaseIdle,
			ViewPhase: valueobject.ViewIdle,
		}
	}
	return &StateSync{
		Phase:     s.Phase,
		ViewPhase: entity.ProjectView(s, userID),
		Session:   s.SnapshotFor(userID),
	}
}

func (uc *UseCase) send(userID uuid.UUID, event string, data interface{}) {
	uc.notifierMu.RLock()
	n := uc.notifier
	uc.notifierMu.RUnlock()
	if n == nil {
		return
	}
	n.SendToUser(userID, event, data)
}

// broadcast отправляет state_sync обоим участникам.
func (uc *UseCase) broadcast(s *entity.Session) {
	for _, userID := range []uuid.UUID{s.CreatorID, s.PartnerID} {
		uc.send(userID, EventStateSync, syncFor(s, userID))
	}
}
