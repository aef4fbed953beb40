// Package backend talks to the local Ollama server.
// API reference: https://github.com/ollama/ollama/blob/main/docs/api.md
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is a single turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResult is a buffered chat completion.
type ChatResult struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// GenerateRequest is a raw text generation request.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is a buffered text generation.
type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// ModelInfo describes a model available on the backend.
type ModelInfo struct {
	Name    string          `json:"name"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Client is an HTTP client for the Ollama REST API.
type Client struct {
	baseURL     string
	client      *http.Client
	timeout     time.Duration
	pullTimeout time.Duration
	estimator   *TokenEstimator
}

// NewClient creates a backend client. The timeout bounds buffered requests;
// streams run until the caller's context ends. pullTimeout applies to model
// pulls, which routinely take minutes.
func NewClient(baseURL string, timeout, pullTimeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:     timeout,
		pullTimeout: pullTimeout,
		estimator:   NewTokenEstimator(),
	}
}

// Estimator exposes the client's token estimator so callers account usage
// with the same rules the client applies to its fallbacks.
func (c *Client) Estimator() *TokenEstimator {
	return c.estimator
}

// ollamaChatPayload is the request body for /api/chat.
type ollamaChatPayload struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaChatChunk is one NDJSON line from /api/chat, also the whole body
// when stream is false.
type ollamaChatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func chatOptions(temperature float64, maxTokens int) map[string]interface{} {
	options := map[string]interface{}{"temperature": temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	return options
}

// Chat sends a buffered chat completion request.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := ollamaChatPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  chatOptions(req.Temperature, req.MaxTokens),
	}

	body, err := c.post(ctx, "/api/chat", payload)
	if err != nil {
		return nil, err
	}

	var chunk ollamaChatChunk
	if err := json.Unmarshal(body, &chunk); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	result := &ChatResult{
		Content:          chunk.Message.Content,
		FinishReason:     chunk.DoneReason,
		PromptTokens:     chunk.PromptEvalCount,
		CompletionTokens: chunk.EvalCount,
	}
	if result.FinishReason == "" {
		result.FinishReason = "stop"
	}
	if result.PromptTokens == 0 {
		result.PromptTokens = c.estimator.EstimateMessages(req.Messages)
	}
	if result.CompletionTokens == 0 {
		result.CompletionTokens = c.estimator.Estimate(result.Content)
	}

	return result, nil
}

// ChatStream sends a streaming chat completion request. The returned stream
// must be closed; usage counts are available once the stream reports done.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	payload := ollamaChatPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  chatOptions(req.Temperature, req.MaxTokens),
	}

	resp, err := c.send(ctx, "POST", "/api/chat", payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, backendError(resp)
	}

	return newChatStream(resp.Body, req.Messages, c.estimator), nil
}

// ollamaGenerateResponse is the buffered body from /api/generate.
type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate sends a raw text generation request.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]interface{}{
		"model":   req.Model,
		"prompt":  req.Prompt,
		"stream":  false,
		"options": chatOptions(req.Temperature, req.MaxTokens),
	}

	body, err := c.post(ctx, "/api/generate", payload)
	if err != nil {
		return nil, err
	}

	var decoded ollamaGenerateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode generate response: %w", err)
	}

	result := &GenerateResult{
		Text:             decoded.Response,
		PromptTokens:     decoded.PromptEvalCount,
		CompletionTokens: decoded.EvalCount,
	}
	if result.PromptTokens == 0 {
		result.PromptTokens = c.estimator.Estimate(req.Prompt)
	}
	if result.CompletionTokens == 0 {
		result.CompletionTokens = c.estimator.Estimate(result.Text)
	}

	return result, nil
}

// ListModels returns the models available on the backend.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, "GET", "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backendError(resp)
	}

	var decoded struct {
		Models []struct {
			Name    string          `json:"name"`
			Model   string          `json:"model"`
			Details json.RawMessage `json:"details"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := make([]ModelInfo, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		models = append(models, ModelInfo{Name: name, Details: m.Details})
	}
	return models, nil
}

// Pull downloads a model onto the backend and returns its final status.
func (c *Client) Pull(ctx context.Context, model string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	payload := map[string]interface{}{"model": model, "stream": false}
	body, err := c.post(ctx, "/api/pull", payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Health checks that the backend answers at all.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := c.send(ctx, "GET", "/api/tags", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backendError(resp)
	}
	return nil
}

// post sends a request and returns the body of a 200 response.
func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	resp, err := c.send(ctx, "POST", path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backendError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// send issues the HTTP request, mapping transport failures to ErrUnavailable.
func (c *Client) send(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// backendError turns a non-200 response into an Error, pulling the message
// out of Ollama's {"error": "..."} body when present.
func backendError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var decoded struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		message = decoded.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &Error{StatusCode: resp.StatusCode, Message: message}
}
