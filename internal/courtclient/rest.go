package courtclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

// RESTTransport отправляет действия запросами. Push-событий нет:
// партнёрские изменения клиент узнаёт опросом fetch_state.
type RESTTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRESTTransport создаёт транспорт. httpClient может быть nil.
func NewRESTTransport(baseURL, token string, httpClient *http.Client) *RESTTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &RESTTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type restEnvelope struct {
	Success bool                 `json:"success"`
	Data    *courtroom.StateSync `json:"data"`
	Error   *restError           `json:"error"`
}

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (t *RESTTransport) Send(ctx context.Context, action courtroom.ActionType, payload interface{}) (*courtroom.StateSync, error) {
	var (
		method = http.MethodPost
		url    = t.baseURL + "/api/court/actions/" + string(action)
		body   io.Reader
	)
	if action == courtroom.ActionFetchState {
		method = http.MethodGet
		url = t.baseURL + "/api/court/state"
	} else {
		raw, err := encodePayload(payload)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			body = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeTransportFailure, ErrTransportFailure.Message)
	}
	defer resp.Body.Close()

	var env restEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("courtclient: не удалось разобрать ответ (%d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error == nil {
			return nil, remoteError("", fmt.Sprintf("код ответа %d", resp.StatusCode))
		}
		return nil, remoteError(env.Error.Code, env.Error.Message)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("courtclient: пустой ответ на %s", action)
	}
	return env.Data, nil
}

// Subscribe ничего не делает: REST не присылает событий.
func (t *RESTTransport) Subscribe(EventHandler) {}

func (t *RESTTransport) Connected() bool { return false }
