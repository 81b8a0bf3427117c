package courtclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

// AdaptiveTransport выбирает путь на каждое действие: сокет, пока он
// подключён, иначе REST. Оборвавшееся на сокете действие не повторяется
// через REST, его исход выясняется перечитыванием состояния.
type AdaptiveTransport struct {
	rest SessionTransport

	mu       sync.RWMutex
	socket   SessionTransport
	handlers []EventHandler
}

func NewAdaptiveTransport(rest SessionTransport) *AdaptiveTransport {
	return &AdaptiveTransport{rest: rest}
}

// AttachSocket подключает новый сокет, например после переподключения.
func (t *AdaptiveTransport) AttachSocket(socket SessionTransport) {
	t.mu.Lock()
	t.socket = socket
	t.mu.Unlock()

	socket.Subscribe(func(event string, data json.RawMessage) {
		t.mu.RLock()
		current := t.socket == socket
		handlers := append([]EventHandler(nil), t.handlers...)
		t.mu.RUnlock()
		if !current {
			return
		}
		for _, h := range handlers {
			h(event, data)
		}
	})
}

func (t *AdaptiveTransport) Send(ctx context.Context, action courtroom.ActionType, payload interface{}) (*courtroom.StateSync, error) {
	t.mu.RLock()
	socket := t.socket
	t.mu.RUnlock()

	if socket != nil && socket.Connected() {
		return socket.Send(ctx, action, payload)
	}
	return t.rest.Send(ctx, action, payload)
}

func (t *AdaptiveTransport) Subscribe(handler EventHandler) {
	t.mu.Lock()
	t.handlers = append(t.handlers, handler)
	t.mu.Unlock()
}

func (t *AdaptiveTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.socket != nil && t.socket.Connected()
}
