package courtclient

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

// Drafts - локальные несохранённые поля ввода. Синхронизация их не
// трогает, очищает только успешное действие или смена сессии.
type Drafts struct {
	Evidence     string
	Feelings     string
	Needs        string
	ResolutionID string
	Addendum     string
}

// Snapshot - всё, что нужно экрану суда.
type Snapshot struct {
	Phase            valueobject.Phase
	ViewPhase        valueobject.ViewPhase
	Session          *entity.Session
	Drafts           Drafts
	IsSubmitting     bool
	Connected        bool
	LastSyncAt       time.Time
	UnreadVerdict    bool
	SettlementNotice *courtroom.Notice
	DismissNotice    *courtroom.Notice
	LastCaseID       *uuid.UUID
}

// Options - настройки контроллера.
type Options struct {
	// Freshness - окно, в течение которого обычный опрос не ходит на сервер.
	Freshness time.Duration
	// PollInterval - период опроса, пока сокет не подключён.
	PollInterval time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Freshness <= 0 {
		o.Freshness = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Controller держит последнее состояние сервера и черновики одного участника.
type Controller struct {
	transport SessionTransport
	userID    uuid.UUID
	opts      Options

	mu               sync.RWMutex
	session          *entity.Session
	phase            valueobject.Phase
	drafts           Drafts
	submitting       int
	lastSyncAt       time.Time
	unreadVerdict    bool
	settlementNotice *courtroom.Notice
	dismissNotice    *courtroom.Notice
	lastCaseID       *uuid.UUID
	endedSessionID   uuid.UUID

	listenersMu sync.RWMutex
	listeners   []func(Snapshot)
}

// NewController создаёт контроллер для пользователя userID и подписывает его на события транспорта.
func NewController(transport SessionTransport, userID uuid.UUID, opts Options) *Controller {
	c := &Controller{
		transport: transport,
		userID:    userID,
		opts:      opts.withDefaults(),
		phase:     valueobject.PhaseIdle,
	}
	transport.Subscribe(c.handleEvent)
	return c
}

// OnChange регистрирует обработчик изменений снимка.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

// Snapshot возвращает текущее состояние.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:            c.phase,
		ViewPhase:        entity.ProjectView(c.session, c.userID),
		Session:          c.session.Clone(),
		Drafts:           c.drafts,
		IsSubmitting:     c.submitting > 0,
		Connected:        c.transport.Connected(),
		LastSyncAt:       c.lastSyncAt,
		UnreadVerdict:    c.unreadVerdict,
		SettlementNotice: c.settlementNotice,
		DismissNotice:    c.dismissNotice,
		LastCaseID:       c.lastCaseID,
	}
}

func (c *Controller) notify() {
	snap := c.Snapshot()
	c.listenersMu.RLock()
	listeners := append(([]func(Snapshot))(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Черновики.

func (c *Controller) SetEvidenceDraft(evidence, feelings, needs string) {
	c.updateDrafts(func(d *Drafts) {
		d.Evidence, d.Feelings, d.Needs = evidence, feelings, needs
	})
}

func (c *Controller) SetResolutionDraft(resolutionID string) {
	c.updateDrafts(func(d *Drafts) { d.ResolutionID = resolutionID })
}

func (c *Controller) SetAddendumDraft(text string) {
	c.updateDrafts(func(d *Drafts) { d.Addendum = text })
}

func (c *Controller) updateDrafts(fn func(*Drafts)) {
	c.mu.Lock()
	fn(&c.drafts)
	c.mu.Unlock()
	c.notify()
}

// AcknowledgeVerdict снимает отметку о непрочитанном вердикте.
func (c *Controller) AcknowledgeVerdict() {
	c.mu.Lock()
	c.unreadVerdict = false
	c.mu.Unlock()
	c.notify()
}

// ClearNotices убирает разовые уведомления об отказе от мировой и отклонённой повестке.
func (c *Controller) ClearNotices() {
	c.mu.Lock()
	c.settlementNotice = nil
	c.dismissNotice = nil
	c.mu.Unlock()
	c.notify()
}

// Действия.

func (c *Controller) Serve(ctx context.Context, partnerID uuid.UUID, judge valueobject.JudgeType) error {
	return c.perform(ctx, courtroom.ActionServe, courtroom.ServeInput{
		PartnerID: partnerID.String(),
		JudgeType: string(judge),
	}, nil)
}

func (c *Controller) Accept(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionAccept, nil, nil)
}

func (c *Controller) Dismiss(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionDismiss, nil, nil)
}

func (c *Controller) Cancel(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionCancel, nil, nil)
}

// SubmitEvidence отправляет черновик доказательств.
func (c *Controller) SubmitEvidence(ctx context.Context) error {
	c.mu.RLock()
	in := courtroom.EvidenceInput{Evidence: c.drafts.Evidence, Feelings: c.drafts.Feelings, Needs: c.drafts.Needs}
	c.mu.RUnlock()

	if strings.TrimSpace(in.Evidence) == "" || strings.TrimSpace(in.Feelings) == "" || strings.TrimSpace(in.Needs) == "" {
		return entity.ErrEmptyEvidence
	}
	return c.perform(ctx, courtroom.ActionSubmitEvidence, in, func(d *Drafts) {
		d.Evidence, d.Feelings, d.Needs = "", "", ""
	})
}

func (c *Controller) MarkPrimingComplete(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionMarkPrimingComplete, nil, nil)
}

func (c *Controller) MarkJointReady(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionMarkJointReady, nil, nil)
}

// SubmitResolutionPick отправляет выбранный в черновике вариант решения.
func (c *Controller) SubmitResolutionPick(ctx context.Context) error {
	c.mu.RLock()
	id := strings.TrimSpace(c.drafts.ResolutionID)
	c.mu.RUnlock()

	if id == "" {
		return entity.ErrMissingResolution
	}
	return c.perform(ctx, courtroom.ActionSubmitResolutionPick, courtroom.ResolutionInput{ResolutionID: id}, func(d *Drafts) {
		d.ResolutionID = ""
	})
}

func (c *Controller) AcceptPartnerResolution(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionAcceptPartnerResolution, nil, nil)
}

func (c *Controller) RequestHybridResolution(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionRequestHybrid, nil, nil)
}

func (c *Controller) RequestSettlement(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionRequestSettlement, nil, nil)
}

func (c *Controller) AcceptSettlement(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionAcceptSettlement, nil, nil)
}

func (c *Controller) DeclineSettlement(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionDeclineSettlement, nil, nil)
}

// SubmitAddendum отправляет черновик дополнения к вердикту.
func (c *Controller) SubmitAddendum(ctx context.Context) error {
	c.mu.RLock()
	text := strings.TrimSpace(c.drafts.Addendum)
	c.mu.RUnlock()

	if text == "" {
		return entity.ErrEmptyAddendum
	}
	return c.perform(ctx, courtroom.ActionSubmitAddendum, courtroom.AddendumInput{Text: text}, func(d *Drafts) {
		d.Addendum = ""
	})
}

func (c *Controller) AcceptVerdict(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionAcceptVerdict, nil, nil)
}

// SubmitVerdictRating оценивает последнее завершённое дело. Если id дела
// неизвестен, сервер берёт последнее дело пары.
func (c *Controller) SubmitVerdictRating(ctx context.Context, rating int) error {
	if _, err := valueobject.NewRating(rating); err != nil {
		return err
	}

	in := courtroom.RatingInput{Rating: rating}
	c.mu.RLock()
	if c.lastCaseID != nil {
		in.CaseID = c.lastCaseID.String()
	}
	c.mu.RUnlock()

	return c.perform(ctx, courtroom.ActionSubmitVerdictRating, in, nil)
}

func (c *Controller) RetryJudge(ctx context.Context) error {
	return c.perform(ctx, courtroom.ActionRetryJudge, nil, nil)
}

// FetchState перечитывает состояние. Без force запрос пропускается,
// если последняя синхронизация была в пределах окна свежести.
func (c *Controller) FetchState(ctx context.Context, force bool) error {
	if !force {
		c.mu.RLock()
		fresh := !c.lastSyncAt.IsZero() && c.opts.Now().Sub(c.lastSyncAt) < c.opts.Freshness
		c.mu.RUnlock()
		if fresh {
			return nil
		}
	}

	state, err := c.transport.Send(ctx, courtroom.ActionFetchState, nil)
	if err != nil {
		return err
	}
	c.applySync(state)
	return nil
}

// RunPolling опрашивает сервер, пока сокет не подключён. При обрыве
// сокета состояние перечитывается сразу.
func (c *Controller) RunPolling(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	wasConnected := c.transport.Connected()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := c.transport.Connected()
			dropped := wasConnected && !connected
			wasConnected = connected
			if connected {
				continue
			}
			if err := c.FetchState(ctx, dropped); err != nil && ctx.Err() == nil {
				logger.Log.WithField("user_id", c.userID).WithError(err).Debug("courtclient: опрос состояния не удался")
			}
		}
	}
}

// perform отправляет действие. Черновики очищаются только после успеха.
func (c *Controller) perform(ctx context.Context, action courtroom.ActionType, payload interface{}, clear func(*Drafts)) error {
	c.mu.Lock()
	c.submitting++
	c.mu.Unlock()
	c.notify()

	state, err := c.transport.Send(ctx, action, payload)

	c.mu.Lock()
	c.submitting--
	if err == nil && clear != nil {
		clear(&c.drafts)
	}
	c.mu.Unlock()

	if err != nil {
		// Исход неизвестен или кэш разошёлся с сервером: перечитываем состояние
		// тем путём, что ещё доступен. Черновики при этом сохраняются.
		if IsTransportFailure(err) || apperror.IsPrecondition(err) || apperror.IsConflict(err) {
			if fetchErr := c.FetchState(ctx, true); fetchErr != nil {
				logger.Log.WithField("action", action).WithError(fetchErr).Warn("courtclient: не удалось перечитать состояние")
			}
		}
		c.notify()
		return err
	}

	c.applySync(state)
	return nil
}

func (c *Controller) handleEvent(event string, data json.RawMessage) {
	switch event {
	case courtroom.EventStateSync:
		var state courtroom.StateSync
		if err := json.Unmarshal(data, &state); err != nil {
			logger.Log.WithError(err).Warn("courtclient: некорректный state_sync")
			return
		}
		c.apply(&state, true)
	case courtroom.EventSettlementDeclined, courtroom.EventSessionDismissed:
		var notice courtroom.Notice
		if err := json.Unmarshal(data, &notice); err != nil {
			logger.Log.WithError(err).WithField("event", event).Warn("courtclient: некорректное уведомление")
			return
		}
		c.mu.Lock()
		if event == courtroom.EventSettlementDeclined {
			c.settlementNotice = &notice
		} else {
			c.dismissNotice = &notice
		}
		c.mu.Unlock()
		c.notify()
	}
}

// showsVerdict сообщает, что участник видит экран вердикта с готовым текстом.
// Новая версия после дополнения экран не меняет.
func (c *Controller) showsVerdict(s *entity.Session) bool {
	return s != nil && s.Verdict != nil && entity.ProjectView(s, c.userID) == valueobject.ViewVerdict
}

// applySync применяет ответ на собственный запрос.
func (c *Controller) applySync(state *courtroom.StateSync) {
	c.apply(state, false)
}

// apply полностью заменяет сессию серверной версией. Устаревшая по
// version синхронизация той же сессии отбрасывается. Рассылка по уже
// завершённой сессии тоже отбрасывается: она могла застрять в очереди хаба.
// Ответ на собственный запрос авторитетен и снимает эту отметку.
func (c *Controller) apply(state *courtroom.StateSync, pushed bool) {
	if state == nil {
		return
	}

	c.mu.Lock()
	prev := c.session
	next := state.Session

	if prev != nil && next != nil && prev.ID == next.ID && next.Version < prev.Version {
		c.mu.Unlock()
		return
	}
	if next != nil && next.ID == c.endedSessionID {
		if pushed {
			c.mu.Unlock()
			logger.Log.WithField("session_id", next.ID).Debug("courtclient: state_sync завершённой сессии отброшен")
			return
		}
		c.endedSessionID = uuid.Nil
	}

	if prev != nil && (next == nil || next.ID != prev.ID) {
		c.drafts = Drafts{}
		c.endedSessionID = prev.ID
	}
	if c.showsVerdict(next) && (prev == nil || prev.ID != next.ID || !c.showsVerdict(prev)) {
		c.unreadVerdict = true
	}
	if next != nil && next.CaseID != nil {
		id := *next.CaseID
		c.lastCaseID = &id
	}

	c.session = next
	c.phase = state.Phase
	if next == nil {
		c.phase = valueobject.PhaseIdle
	}
	if state.Rating != nil {
		id := state.Rating.CaseID
		c.lastCaseID = &id
	}
	c.lastSyncAt = c.opts.Now()
	c.mu.Unlock()

	c.notify()
}
