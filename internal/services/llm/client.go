// Package llm provides a minimal client for OpenAI-compatible chat completion
// APIs, used for meeting-boundary detection and note summarization.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meetingnotesd/internal/config"
	"meetingnotesd/internal/services"
)

const (
	defaultMaxRetries = 3
	baseRetryDelay    = 2 * time.Second
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
}

// New builds a client from the shared LLM settings. Returns an error when no
// API key is available.
func New(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrInput, "llm", "new", "no API key configured (set llm.api_key or LLM_API_KEY)", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		maxRetries: defaultMaxRetries,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single-turn prompt and returns the raw response text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.complete(ctx, system, prompt, nil)
}

// CompleteJSON sends a single-turn prompt requesting a JSON object response.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return c.complete(ctx, system, prompt, &responseFormat{Type: "json_object"})
}

func (c *Client) complete(ctx context.Context, system, prompt string, format *responseFormat) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    0.2,
		ResponseFormat: format,
	})
	if err != nil {
		return "", services.Wrap(services.ErrInput, "llm", "complete", "encode request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay << (attempt - 1)
			if retryAfter, ok := retryAfterFrom(lastErr); ok && retryAfter > delay {
				delay = retryAfter
			}
			select {
			case <-ctx.Done():
				return "", services.Wrap(services.ErrTimeout, "llm", "complete", "context cancelled during retry", ctx.Err())
			case <-time.After(delay):
			}
		}

		text, err := c.post(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !services.IsTransient(err) {
			return "", err
		}
	}
	return "", lastErr
}

type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryAfterFrom(err error) (time.Duration, bool) {
	for ; err != nil; err = unwrap(err) {
		if re, ok := err.(*retryableError); ok && re.retryAfter > 0 {
			return re.retryAfter, true
		}
	}
	return 0, false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrInput, "llm", "post", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &retryableError{err: services.Wrap(services.ErrTransient, "llm", "post", "request failed", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &retryableError{err: services.Wrap(services.ErrTransient, "llm", "post", "read response", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		re := &retryableError{err: services.Wrapf(services.ErrTransient, "llm", "post", nil, "server returned %d", resp.StatusCode)}
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			re.retryAfter = time.Duration(secs) * time.Second
		}
		return "", re
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrapf(services.ErrDispatch, "llm", "post", nil, "server returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrDispatch, "llm", "post", "decode response", err)
	}
	if parsed.Error != nil {
		return "", services.Wrapf(services.ErrDispatch, "llm", "post", nil, "api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", services.Wrap(services.ErrDispatch, "llm", "post", "response contained no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// DecodeJSON unmarshals an LLM response into out, tolerating markdown code
// fences and leading prose around the JSON object.
func DecodeJSON(response string, out any) error {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			cleaned = cleaned[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}
