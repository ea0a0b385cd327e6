// Package genai is the client for the content-generation service. The rest
// of the system treats the service as opaque: a prompt plus generation
// parameters go in, generated text plus a token-usage triple come out.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// maxAttempts bounds the transient-error retry loop inside a single call.
const maxAttempts = 3

// Usage is the token accounting for one generation call.
type Usage struct {
	Prompt int `json:"prompt"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Add accumulates another usage triple into u.
func (u *Usage) Add(other Usage) {
	u.Prompt += other.Prompt
	u.Output += other.Output
	u.Total += other.Total
}

// Request describes one generation call.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int

	// JSONSchema, when set, requests structured JSON output conforming to
	// the schema.
	JSONSchema map[string]any

	// CachedContent references previously cached document content by name.
	CachedContent string

	// FileURI attaches an uploaded file to the prompt.
	FileURI string
	// MIMEType qualifies FileURI.
	MIMEType string

	// Search enables the provider's web search tool for this call.
	Search bool
}

// Result is the outcome of one generation call.
type Result struct {
	Text  string
	Usage Usage
}

// Generator is the capability agents depend on. *Client implements it; tests
// substitute a stub.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status: %s, code: %d, error: %s", e.Status, e.StatusCode, e.ErrorMessage)
}

// retryable reports whether the error is worth another attempt: rate limits
// and server-side failures are, client errors are not.
func retryable(err error) bool {
	se, ok := err.(*StatusError)
	if !ok {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
}

// Client talks to the Gemini REST surface. It is safe for concurrent use;
// token usage is accumulated across all calls made through the client.
type Client struct {
	model   string
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu    sync.Mutex
	usage Usage
	calls int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the given model. An empty apiKey falls back
// to the GOOGLE_API_KEY environment variable.
func NewClient(model, apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	c := &Client{
		model:   model,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  slog.Default().With("component", "genai", "model", model),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model identifier the client is bound to.
func (c *Client) Model() string {
	return c.model
}

// TotalUsage returns the accumulated token usage across all calls.
func (c *Client) TotalUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Calls returns the number of successful generation calls made.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Generate performs one generation call, retrying transient failures with a
// linearly increasing backoff.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := c.generateOnce(ctx, req)
		if err == nil {
			c.mu.Lock()
			c.usage.Add(res.Usage)
			c.calls++
			c.mu.Unlock()
			return res, nil
		}

		lastErr = err
		if !retryable(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * time.Second
		c.logger.Warn("generation failed, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("generate failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, req Request) (*Result, error) {
	wire := generateContentRequest{
		Contents: []content{{Role: "user", Parts: buildParts(req)}},
	}

	cfg := &generationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.JSONSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.JSONSchema
	}
	wire.GenerationConfig = cfg

	if req.CachedContent != "" {
		wire.CachedContent = req.CachedContent
	}
	if req.Search {
		wire.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{
			StatusCode:   resp.StatusCode,
			Status:       resp.Status,
			ErrorMessage: string(respBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var wireResp generateContentResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	if len(wireResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var text string
	for _, part := range wireResp.Candidates[0].Content.Parts {
		text += part.Text
	}

	res := &Result{Text: text}
	if wireResp.UsageMetadata != nil {
		res.Usage = Usage{
			Prompt: wireResp.UsageMetadata.PromptTokenCount,
			Output: wireResp.UsageMetadata.CandidatesTokenCount,
			Total:  wireResp.UsageMetadata.TotalTokenCount,
		}
	}
	return res, nil
}

func buildParts(req Request) []contentPart {
	parts := []contentPart{{Text: req.Prompt}}
	if req.FileURI != "" {
		parts = append(parts, contentPart{
			FileData: &fileData{FileURI: req.FileURI, MIMEType: req.MIMEType},
		})
	}
	return parts
}
