package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL: srv.URL + "/",
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
		Retry: RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
			Multiplier: 2,
		},
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "plain", text: `{"a":1}`, want: `{"a":1}`, ok: true},
		{name: "markdown", text: "Here:\n```json\n{\"a\":2}\n```\nbye", want: `{"a":2}`, ok: true},
		{name: "surrounded", text: `Sure! {"a":{"b":3}} Hope it helps`, want: `{"a":{"b":3}}`, ok: true},
		{name: "no json", text: "I refuse", ok: false},
		{name: "broken", text: `{"a":`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.text)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestClient_Analyze(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string        `json:"model"`
			Messages []chatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Contains(t, body.Messages[0].Content, "brief and direct")
		assert.Contains(t, body.Messages[1].Content, "dishes")

		_ = json.NewEncoder(w).Encode(completion("```json\n{\"summary\":\"chores\"}\n```"))
	})

	got, err := client.Analyze(context.Background(), CaseInput{
		JudgeType: "swift",
		Creator:   Party{Role: "creator", Evidence: "dishes", Feelings: "frustrated", Needs: "help"},
		Partner:   Party{Role: "partner", Evidence: "work", Feelings: "tired", Needs: "rest"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"chores"}`, string(got))
}

func TestClient_ProposeResolutions_FillsMissingIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		content := `{"resolutions":[{"id":"R1","title":"a"},{"title":"b"},{"id":"R1","title":"c"}]}`
		_ = json.NewEncoder(w).Encode(completion(content))
	})

	got, err := client.ProposeResolutions(context.Background(), CaseInput{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "R1", got[0].ID)
	assert.Equal(t, "R2", got[1].ID)
	assert.Equal(t, "R3", got[2].ID)
	assert.JSONEq(t, `{"id":"R1","title":"a"}`, string(got[0].Payload))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completion(`{"topics":[]}`))
	})

	got, err := client.JointMenu(context.Background(), CaseInput{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"topics":[]}`, string(got))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})

	_, err := client.RenderVerdict(context.Background(), CaseInput{}, nil, 1)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Disabled(t *testing.T) {
	client := NewClient(Config{})
	assert.False(t, client.Enabled())

	_, err := client.Analyze(context.Background(), CaseInput{})
	assert.ErrorIs(t, err, ErrDisabled)
}
