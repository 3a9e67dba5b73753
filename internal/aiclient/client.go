package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/avoronkov/lab_ingest/internal/config"
)

const (
	requestTimeout = 60 * time.Second
	maxRetries     = 3
	backoffBase    = time.Second
	backoffCap     = 10 * time.Second
)

// CompletionRequest mirrors the completion collaborator contract: one system
// prompt, one user prompt, sampling parameters.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	log        *slog.Logger
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func New(log *slog.Logger, cfg config.AI) *Client {
	return &Client{
		log:        log,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Model returns the configured default model.
func (c *Client) Model() string {
	return c.model
}

// MaxTokens returns the configured completion budget.
func (c *Client) MaxTokens() int {
	return c.maxTokens
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("completion api http %d: %s", e.StatusCode, e.Body)
}

func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusRequestTimeout ||
			he.StatusCode == http.StatusTooManyRequests ||
			he.StatusCode >= 500
	}

	return false
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one completion request and returns the raw assistant
// content. Transient failures (timeouts, 408/429/5xx) are retried with capped
// exponential backoff.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	var content string

	backoff := retry.WithCappedDuration(backoffCap,
		retry.WithMaxRetries(maxRetries, retry.NewExponential(backoffBase)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		content, err = c.doOnce(ctx, body)
		if err == nil {
			return nil
		}

		if !retryable(err) {
			return err
		}

		c.log.DebugContext(ctx, "completion request retrying", slog.String("err", err.Error()))

		return retry.RetryableError(err)
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete: %w", err)
	}

	return content, nil
}

func (c *Client) doOnce(ctx context.Context, body chatRequest) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
