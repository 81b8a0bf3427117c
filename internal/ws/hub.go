package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/goroutine"
	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

// Dispatcher выполняет действия участников, пришедшие по сокету.
type Dispatcher interface {
	Dispatch(ctx context.Context, id courtroom.Identity, action courtroom.Action) (*courtroom.StateSync, error)
}

// Hub управляет всеми WebSocket клиентами.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	dispatcher Dispatcher
	ctx        context.Context
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

// Envelope - сообщение протокола в обе стороны.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload - ошибка действия, только инициатору.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHub создаёт новый хаб.
func NewHub(ctx context.Context, dispatcher Dispatcher) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		dispatcher: dispatcher,
		ctx:        ctx,
	}
}

// Run запускает главный цикл хаба до отмены контекста.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// BroadcastToUser отправляет событие всем подключениям пользователя.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := encode(event, "", data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message{userID: userID, payload: raw}:
	case <-h.ctx.Done():
	}
	return nil
}

// SendToUser реализует courtroom.Notifier.
func (h *Hub) SendToUser(userID uuid.UUID, event string, data interface{}) {
	if err := h.BroadcastToUser(userID, event, data); err != nil {
		logger.Log.WithField("user_id", userID).WithField("event", event).WithError(err).Error("ws: событие не отправлено")
	}
}

// Connected возвращает число подключений пользователя.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func encode(event, requestID string, data any) ([]byte, error) {
	env := Envelope{Type: event, RequestID: requestID}
	if errPayload, ok := data.(*ErrorPayload); ok {
		env.Error = errPayload
	} else if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
		}
		env.Data = raw
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}
	return raw, nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.id.UserID]; !ok {
		h.clients[client.id.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.id.UserID][client] = struct{}{}
	logger.Log.WithField("user_id", client.id.UserID).Debug("ws: клиент подключён")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.id.UserID]; ok {
		if _, ok := clients[client]; !ok {
			return
		}
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.id.UserID)
		}
		logger.Log.WithField("user_id", client.id.UserID).Debug("ws: клиент отключён")
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		if !client.enqueue(payload) {
			// Медленный клиент: закрываем вне цикла хаба.
			c := client
			goroutine.SafeGo(c.Close)
		}
	}
}
