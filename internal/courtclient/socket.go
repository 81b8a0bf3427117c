package courtclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/goodnight000/kittycourt-backend/internal/logger"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
	"github.com/goodnight000/kittycourt-backend/internal/ws"
)

const socketWriteWait = 10 * time.Second

// SocketTransport - действия по WebSocket. Ответ находится по request_id,
// state_sync и уведомления уходят подписчикам.
type SocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan ws.Envelope
	handlers []EventHandler

	connected atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// DialSocket подключается к serverURL (ws://host/api/ws) с access токеном.
// dialer может быть nil.
func DialSocket(ctx context.Context, serverURL, token string, dialer *websocket.Dialer) (*SocketTransport, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("courtclient: некорректный адрес сокета: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("courtclient: не удалось подключиться к сокету: %w", err)
	}

	t := &SocketTransport{
		conn:    conn,
		pending: make(map[string]chan ws.Envelope),
		done:    make(chan struct{}),
	}
	t.connected.Store(true)
	go t.readLoop()
	return t, nil
}

func (t *SocketTransport) Send(ctx context.Context, action courtroom.ActionType, payload interface{}) (*courtroom.StateSync, error) {
	if !t.Connected() {
		return nil, ErrTransportFailure
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	reply := make(chan ws.Envelope, 1)
	t.mu.Lock()
	t.pending[requestID] = reply
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, requestID)
		t.mu.Unlock()
	}()

	if err := t.write(ws.Envelope{Type: string(action), RequestID: requestID, Data: raw}); err != nil {
		t.shutdown()
		return nil, ErrTransportFailure
	}

	select {
	case env := <-reply:
		if env.Error != nil {
			return nil, remoteError(env.Error.Code, env.Error.Message)
		}
		var state courtroom.StateSync
		if err := json.Unmarshal(env.Data, &state); err != nil {
			return nil, fmt.Errorf("courtclient: не удалось разобрать ответ: %w", err)
		}
		return &state, nil
	case <-t.done:
		return nil, ErrTransportFailure
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *SocketTransport) Subscribe(handler EventHandler) {
	t.mu.Lock()
	t.handlers = append(t.handlers, handler)
	t.mu.Unlock()
}

func (t *SocketTransport) Connected() bool {
	return t.connected.Load()
}

// Close закрывает соединение. Ожидающие действия получают ErrTransportFailure.
func (t *SocketTransport) Close() error {
	t.shutdown()
	return nil
}

func (t *SocketTransport) write(env ws.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return t.conn.WriteJSON(env)
}

func (t *SocketTransport) readLoop() {
	defer t.shutdown()

	for {
		var env ws.Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.WithError(err).Warn("courtclient: сокет оборвался")
			}
			return
		}

		if env.RequestID != "" && (env.Type == ws.EventActionResult || env.Type == ws.EventActionError) {
			t.mu.Lock()
			reply, ok := t.pending[env.RequestID]
			t.mu.Unlock()
			if ok {
				select {
				case reply <- env:
				default:
				}
			}
			continue
		}

		t.mu.Lock()
		handlers := append([]EventHandler(nil), t.handlers...)
		t.mu.Unlock()
		for _, h := range handlers {
			h(env.Type, env.Data)
		}
	}
}

func (t *SocketTransport) shutdown() {
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		close(t.done)
		_ = t.conn.Close()
	})
}
