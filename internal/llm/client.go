package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/muilab/notigpt/internal/logger"
)

const defaultTimeout = 15 * time.Minute

// Completer issues chat completions. The digest dispatcher depends on this,
// not on Client, so tests can substitute it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a chat-completion client. model is used when a request
// leaves Model empty.
func NewClient(apiKey, baseURL, model string, logger *logger.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.WithComponent("llm-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// CreateChatCompletion makes a single, non-streaming completion call.
// Provider-side failures come back as *APIError; transport and decode
// failures as plain wrapped errors.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call LLM at %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		c.logger.WithContext(ctx).Warn("LLM returned error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("type", apiErr.Type),
			slog.String("model", req.Model))
		return nil, apiErr
	}

	var result ChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.WithContext(ctx).Debug("chat completion finished",
		slog.String("model", req.Model),
		slog.Int("choices", len(result.Choices)),
		slog.Duration("duration", time.Since(start)))

	return &result, nil
}
