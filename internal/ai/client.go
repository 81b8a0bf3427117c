package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled возвращается, когда адрес модели не настроен.
var ErrDisabled = errors.New("ai: baseURL не задан")

// StatusError - ответ провайдера с кодом ошибки.
type StatusError struct {
	StatusCode int
	Body       map[string]any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai: код ответа %d: %v", e.StatusCode, e.Body)
}

// Config - параметры подключения к OpenAI-совместимому API.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retry   RetryConfig
}

// Client - ИИ-судья поверх OpenAI-совместимого chat/completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	retry      RetryConfig
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		retry:   cfg.Retry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled сообщает, настроен ли клиент.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) chatCompletion(ctx context.Context, messages []chatMessage) (string, error) {
	return c.chatCompletionWithOptions(ctx, messages, 1500, 0.6)
}

func (c *Client) chatCompletionWithOptions(ctx context.Context, messages []chatMessage, maxTokens int, temperature float64) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var content string
	err = withRetry(ctx, c.retry, func() error {
		var err error
		content, err = c.post(ctx, body)
		return err
	})
	return content, err
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: errorBody}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("ai: пустой ответ")
	}

	return result.Choices[0].Message.Content, nil
}
