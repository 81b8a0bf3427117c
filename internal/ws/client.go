package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/goodnight000/kittycourt-backend/internal/goroutine"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	actionTimeout = 15 * time.Second
	maxMessage    = 64 * 1024
)

// События ответа инициатору.
const (
	EventActionResult = "action_result"
	EventActionError  = "action_error"
)

var errTooManyActions = apperror.New(apperror.ErrCodeTooManyRequests, "слишком много действий, попробуйте позже")

// Client представляет одно подключение WebSocket.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	id      courtroom.Identity
	limiter *rate.Limiter
	send    chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient создаёт нового клиента. limiter ограничивает входящие действия.
func NewClient(conn *websocket.Conn, hub *Hub, id courtroom.Identity, limiter *rate.Limiter) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		id:      id,
		limiter: limiter,
		send:    make(chan []byte, 32),
		done:    make(chan struct{}),
	}
}

// Run запускает обработку входящих и исходящих сообщений.
// Возвращается, когда соединение закрыто.
func (c *Client) Run(ctx context.Context) {
	goroutine.SafeGo(c.writePump)
	c.pushState(ctx)
	c.readPump(ctx)
}

// pushState отправляет текущее состояние сразу после подключения,
// чтобы переподключившийся клиент не ждал следующей мутации.
func (c *Client) pushState(ctx context.Context) {
	state, err := c.hub.dispatcher.Dispatch(ctx, c.id, courtroom.Action{Type: courtroom.ActionFetchState})
	if err != nil {
		logger.Log.WithField("user_id", c.id.UserID).WithError(err).Warn("ws: не удалось получить состояние")
		return
	}
	c.reply(courtroom.EventStateSync, "", state)
}

// Close закрывает соединение. Повторные вызовы ничего не делают.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.Unregister(c)
		_ = c.conn.Close()
	})
}

func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.WithField("user_id", c.id.UserID).WithError(err).Warn("ws: соединение оборвалось")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.handle(ctx, raw)
	}
}

// handle выполняет одно входящее действие. Действия одного подключения
// выполняются по порядку.
func (c *Client) handle(ctx context.Context, raw []byte) {
	var in Envelope
	if err := json.Unmarshal(raw, &in); err != nil {
		c.replyError("", apperror.New(apperror.ErrCodeBadRequest, "некорректное сообщение"))
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.replyError(in.RequestID, errTooManyActions)
		return
	}

	actionType, err := courtroom.ParseActionType(in.Type)
	if err != nil {
		c.replyError(in.RequestID, err)
		return
	}

	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	state, err := c.hub.dispatcher.Dispatch(actionCtx, c.id, courtroom.Action{Type: actionType, Payload: in.Data})
	if err != nil {
		c.replyError(in.RequestID, err)
		return
	}
	c.reply(EventActionResult, in.RequestID, state)
}

func (c *Client) reply(event, requestID string, data any) {
	raw, err := encode(event, requestID, data)
	if err != nil {
		logger.Log.WithError(err).Error("ws: ответ не сериализован")
		return
	}
	if !c.enqueue(raw) {
		goroutine.SafeGo(c.Close)
	}
}

func (c *Client) replyError(requestID string, err error) {
	code := apperror.CodeOf(err)
	message := apperror.MessageOf(err)
	if code == apperror.ErrCodeInternal {
		logger.Log.WithField("user_id", c.id.UserID).WithError(err).Error("ws: ошибка действия")
		message = "внутренняя ошибка сервера"
	}
	c.reply(EventActionError, requestID, &ErrorPayload{Code: string(code), Message: message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
