// Copyright (c) 2025 The PrivateCode Authors (github.com/Legorobotdude/PrivateCode)
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL uses the IPv4 loopback to avoid IPv6 resolution issues on Windows.
	DefaultBaseURL = "http://127.0.0.1:11434"

	DefaultModel   = "qwen2.5-coder:14b"
	DefaultTimeout = 500 * time.Second

	// maxErrorBody caps how much of a failed reply is kept in the error.
	maxErrorBody = 2048
)

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout bounds a single non-streaming request when the caller does not
	// pass one (default: 500s; local models can be slow)
	Timeout time.Duration

	// DefaultModel is used when a call names no model
	DefaultModel string

	// AllowFallback retries once with the first installed model when the
	// requested one is missing
	AllowFallback bool

	// Options are the sampling parameters (default: DefaultOptions)
	Options *Options

	// OnFallback is told which model replaced the missing one
	OnFallback func(requested, used string)

	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      DefaultBaseURL,
		Timeout:      DefaultTimeout,
		DefaultModel: DefaultModel,
		Options:      DefaultOptions(),
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use. The default model may be changed
// at any time with SetModel; in-flight requests keep the model they started with.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.RWMutex
	model string
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	// Fill in defaults for any zero values
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.Options == nil {
		cfg.Options = DefaultOptions()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		config: cfg,
		// Deadlines come from the request context so streaming is not cut off.
		httpClient: &http.Client{},
		log:        log.With("component", "ollama"),
		model:      cfg.DefaultModel,
	}
}

// Model returns the current default model.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetModel updates the default model.
func (c *Client) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

func (c *Client) pick(model string) string {
	if model != "" {
		return model
	}
	return c.Model()
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &BackendError{Kind: KindConnectionRefused, Message: "bad server address", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &BackendError{Kind: KindServerError, Status: resp.StatusCode, Message: "unexpected status from Ollama"}
	}
	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &BackendError{Kind: KindConnectionRefused, Message: "bad server address", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &BackendError{Kind: KindMalformedResponse, Message: "failed to decode model list", Err: err}
	}
	return result.Models, nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Generate sends a single-prompt conversation and returns the reply text.
// model "" uses the default model; timeout <= 0 uses the configured timeout.
func (c *Client) Generate(ctx context.Context, prompt, model string, timeout time.Duration) (string, error) {
	return c.Complete(ctx, []Message{NewUserMessage(prompt)}, model, timeout)
}

// Complete sends a conversation and returns the reply text with any
// unterminated thinking block removed. When the model is missing and
// fallback is enabled, the request is retried once on the first installed
// model with a system note explaining the substitution.
func (c *Client) Complete(ctx context.Context, messages []Message, model string, timeout time.Duration) (string, error) {
	model = c.pick(model)
	resp, err := c.chat(ctx, model, messages, timeout)
	if err != nil && IsModelNotFound(err) && c.config.AllowFallback {
		resp, err = c.fallback(ctx, model, messages, timeout, err)
	}
	if err != nil {
		return "", err
	}
	return SanitizeThinking(resp.Message.Content), nil
}

// Chat sends a multi-turn conversation and returns the full response.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	return c.chat(ctx, c.pick(model), messages, 0)
}

func (c *Client) fallback(ctx context.Context, model string, messages []Message, timeout time.Duration, cause error) (*ChatResponse, error) {
	models, err := c.ListModels(ctx)
	if err != nil || len(models) == 0 {
		c.log.Warn("model not found and no fallback available", "model", model)
		return nil, cause
	}
	used := models[0].Name
	if used == model {
		return nil, cause
	}

	c.log.Warn("model not found, falling back", "requested", model, "used", used)
	if c.config.OnFallback != nil {
		c.config.OnFallback(model, used)
	}

	note := NewSystemMessage(fmt.Sprintf(
		"Note: The requested model '%s' was not available. Using '%s' instead.", model, used))
	retry := append(append([]Message(nil), messages...), note)

	resp, err := c.chat(ctx, used, retry, timeout)
	if err != nil {
		return nil, fmt.Errorf("fallback model %q: %w", used, err)
	}
	return resp, nil
}

func (c *Client) chat(ctx context.Context, model string, messages []Message, timeout time.Duration) (*ChatResponse, error) {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.post(ctx, model, ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  c.config.Options,
	})
	if err != nil {
		return nil, annotateTimeout(err, timeout)
	}
	defer drainAndClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, annotateTimeout(transportError(ctx, err), timeout)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &BackendError{Kind: KindMalformedResponse, Model: model, Message: "empty response"}
	}

	var result ChatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &BackendError{Kind: KindMalformedResponse, Model: model, Message: truncate(string(body)), Err: err}
	}
	if result.Error != "" {
		return nil, statusError(model, 0, result.Error)
	}

	c.log.Debug("chat complete", "model", model,
		"tokens", result.EvalCount, "tok_per_sec", fmt.Sprintf("%.1f", result.TokensPerSecond()))
	return &result, nil
}

// post sends a chat request and returns the response when the status is 200.
func (c *Client) post(ctx context.Context, model string, reqBody ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Kind: KindConnectionRefused, Message: "bad server address", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		berr := transportError(ctx, err)
		c.log.Warn("chat request failed", "model", model, "error", berr)
		return nil, berr
	}

	if resp.StatusCode != http.StatusOK {
		defer drainAndClose(resp.Body)
		berr := statusError(model, resp.StatusCode, readErrorBody(resp.Body))
		c.log.Warn("chat request rejected", "model", model, "status", resp.StatusCode)
		return nil, berr
	}
	return resp, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCallback is called for each chunk received during streaming.
type StreamCallback func(chunk StreamChunk)

// ChatStream sends a streaming chat request and calls the callback for each
// chunk, in order. It returns when the stream is complete or fails.
// Streaming has no overall timeout; cancel ctx to stop it.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error {
	model = c.pick(model)
	resp, err := c.post(ctx, model, ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Options:  c.config.Options,
	})
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	return NewStreamReader(resp.Body, model).Process(ctx, callback)
}

// =============================================================================
// HELPERS
// =============================================================================

// readErrorBody extracts the server's error text from a failed reply.
func readErrorBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(raw))
}

func annotateTimeout(err error, d time.Duration) error {
	var be *BackendError
	if errors.As(err, &be) && be.Kind == KindTimeout && be.Message == "" {
		be.Message = "no reply within " + d.String()
	}
	return err
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<20))
	r.Close()
}
