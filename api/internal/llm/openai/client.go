package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"damage-assessor/api/internal/llm"
)

const DefaultURL = "https://api.openai.com/v1/chat/completions"

// Client: минимальный клиент chat/completions, общий для OpenAI-совместимых API.
type Client struct {
	APIKey string
	URL    string
	name   string
	http   *retryablehttp.Client
}

type ClientOptions struct {
	Retries int
	Timeout time.Duration
}

func NewClient(name, apiKey, url string, opt ClientOptions) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = 120 * time.Second
	}
	if opt.Retries < 0 {
		opt.Retries = 0
	}
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = opt.Retries
	rc.HTTPClient.Timeout = opt.Timeout
	rc.Logger = nil
	// после последней попытки отдаём ответ как есть, чтобы показать статус и тело
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	return &Client{
		APIKey: strings.TrimSpace(apiKey),
		URL:    strings.TrimSpace(url),
		name:   name,
		http:   rc,
	}
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete отправляет запрос и возвращает текст первого варианта ответа.
// Пустой список choices не ошибка: вернётся пустая строка.
func (c *Client) Complete(ctx context.Context, in ChatRequest) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%w: %s api key is empty", llm.ErrUpstream, c.name)
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", llm.ErrUpstream, c.name, err)
	}
	defer resp.Body.Close()

	body, err := ioReadAllLimit(resp.Body, 4<<20)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", llm.ErrUpstream, c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s %d: %s", llm.ErrUpstream, c.name, resp.StatusCode, truncate(strings.TrimSpace(string(body)), 512))
	}

	var raw chatResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("%w: %s: bad response: %v", llm.ErrUpstream, c.name, err)
	}
	if len(raw.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
