package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 64 << 10
)

// Client communicates with an OpenAI-compatible text-generation API.
// It never retries: every failure is returned to the caller as an *Error.
type Client struct {
	mu         sync.RWMutex
	apiKey     string
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client for the default API endpoint.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		userAgent: "sheetprompt",
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// SetTimeout bounds each HTTP call. A call that does not answer in time is
// reported as a transport error.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// SetAPIKey replaces the bearer credential used by subsequent calls.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

// Generate performs one call and returns the generated text. Requests with
// Messages use the chat shape; all others use the single-prompt completion shape.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.IsChat() {
		return c.Chat(ctx, req.Model, req.Messages)
	}
	return c.Complete(ctx, req.Model, req.Prompt, req.MaxTokens)
}

// Complete sends a single prompt to POST /completions.
func (c *Client) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(completionRequest{Model: model, Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var resp completionResponse
	if err := c.post(ctx, "/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", malformedError("malformed response: no choices returned")
	}
	return resp.Choices[0].Text, nil
}

// Chat sends a transcript to POST /chat/completions and returns the
// assistant message content.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", malformedError("malformed response: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindMalformed, Message: fmt.Sprintf("malformed response: %v", err), Err: err}
	}
	return nil
}

// statusError converts a non-200 response into an *Error, preferring the
// API's own error message when the body carries one.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	var envelope apiErrorBody
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	return &Error{Kind: statusKind(resp.StatusCode), StatusCode: resp.StatusCode, Message: msg}
}

// ListModels returns the models available to the configured key.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	c.mu.RLock()
	key := c.apiKey
	c.mu.RUnlock()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", c.userAgent)
}
