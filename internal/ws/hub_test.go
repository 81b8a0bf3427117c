package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/goodnight000/kittycourt-backend/internal/domain/valueobject"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	actions []courtroom.ActionType
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ courtroom.Identity, action courtroom.Action) (*courtroom.StateSync, error) {
	d.mu.Lock()
	d.actions = append(d.actions, action.Type)
	d.mu.Unlock()

	if action.Type == courtroom.ActionAcceptVerdict {
		return nil, assert.AnError
	}
	return &courtroom.StateSync{Phase: valueobject.PhaseIdle, ViewPhase: valueobject.ViewIdle}, nil
}

func (d *fakeDispatcher) seen() []courtroom.ActionType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]courtroom.ActionType(nil), d.actions...)
}

type testServer struct {
	hub        *Hub
	dispatcher *fakeDispatcher
	server     *httptest.Server
	userID     uuid.UUID
}

func newTestServer(t *testing.T, limit rate.Limit, burst int) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &fakeDispatcher{}
	hub := NewHub(ctx, dispatcher)
	go hub.Run()

	ts := &testServer{hub: hub, dispatcher: dispatcher, userID: uuid.New()}
	upgrader := websocket.Upgrader{}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn, hub, courtroom.Identity{UserID: ts.userID, CoupleID: uuid.New()}, rate.NewLimiter(limit, burst))
		hub.Register(client)
		client.Run(r.Context())
	}))

	t.Cleanup(func() {
		ts.server.Close()
		cancel()
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestClient_PushesStateOnConnect(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	conn := ts.dial(t)

	env := readEnvelope(t, conn)
	assert.Equal(t, courtroom.EventStateSync, env.Type)
	assert.Empty(t, env.RequestID)

	var state courtroom.StateSync
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, valueobject.PhaseIdle, state.Phase)
	assert.Equal(t, []courtroom.ActionType{courtroom.ActionFetchState}, ts.dispatcher.seen())
}

func TestClient_ActionResultEchoesRequestID(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	conn := ts.dial(t)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       "mark-priming-complete",
		"request_id": "req-1",
	}))

	env := readEnvelope(t, conn)
	assert.Equal(t, EventActionResult, env.Type)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Nil(t, env.Error)
	assert.Contains(t, ts.dispatcher.seen(), courtroom.ActionMarkPrimingComplete)
}

func TestClient_ActionErrors(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	conn := ts.dial(t)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bribe_judge", "request_id": "req-2"}))
	env := readEnvelope(t, conn)
	assert.Equal(t, EventActionError, env.Type)
	assert.Equal(t, "req-2", env.RequestID)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "accept_verdict", "request_id": "req-3"}))
	env = readEnvelope(t, conn)
	assert.Equal(t, EventActionError, env.Type)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, env.Error.Message, assert.AnError.Error())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	env = readEnvelope(t, conn)
	assert.Equal(t, EventActionError, env.Type)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestClient_RateLimited(t *testing.T) {
	ts := newTestServer(t, 0, 1)
	conn := ts.dial(t)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "cancel", "request_id": "a"}))
	env := readEnvelope(t, conn)
	assert.Equal(t, EventActionResult, env.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "cancel", "request_id": "b"}))
	env = readEnvelope(t, conn)
	assert.Equal(t, EventActionError, env.Type)
	assert.Equal(t, "b", env.RequestID)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.Error.Code)
}

func TestHub_SendToUser(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	first := ts.dial(t)
	second := ts.dial(t)
	readEnvelope(t, first)
	readEnvelope(t, second)

	require.Eventually(t, func() bool { return ts.hub.Connected(ts.userID) == 2 }, 2*time.Second, 10*time.Millisecond)

	ts.hub.SendToUser(ts.userID, courtroom.EventSessionDismissed, courtroom.Notice{ByUserID: ts.userID})
	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, courtroom.EventSessionDismissed, env.Type)

		var notice courtroom.Notice
		require.NoError(t, json.Unmarshal(env.Data, &notice))
		assert.Equal(t, ts.userID, notice.ByUserID)
	}

	// Чужому пользователю ничего не уходит.
	ts.hub.SendToUser(uuid.New(), courtroom.EventStateSync, nil)
	require.NoError(t, first.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	ts := newTestServer(t, rate.Inf, 1)
	conn := ts.dial(t)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return ts.hub.Connected(ts.userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ts.hub.Connected(ts.userID) == 0 }, 2*time.Second, 10*time.Millisecond)
}
