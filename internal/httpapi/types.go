package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/backend"
)

// ChatCompletionRequest is the OpenAI-compatible chat request body.
type ChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []backend.Message `json:"messages"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream"`
}

// UsageStats mirrors the OpenAI usage block.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      backend.Message `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ChatCompletionResponse is the buffered chat response body.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   UsageStats   `json:"usage"`
}

// chatChunkDelta is the delta block inside a streamed chunk.
type chatChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// chatChunkChoice is one choice inside a streamed chunk.
type chatChunkChoice struct {
	Index        int            `json:"index"`
	Delta        chatChunkDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE frame of a streamed chat response. The
// final frame before the end marker has no choices and carries the usage
// block with the stream's token accounting.
type ChatCompletionChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
	Usage   *UsageStats       `json:"usage,omitempty"`
}

// GenerateAPIRequest is the raw text generation request body.
type GenerateAPIRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// GenerateAPIResponse is the raw text generation response body.
type GenerateAPIResponse struct {
	ID      string     `json:"id"`
	Object  string     `json:"object"`
	Created int64      `json:"created"`
	Model   string     `json:"model"`
	Text    string     `json:"text"`
	Usage   UsageStats `json:"usage"`
}

// ModelEntry is one model in the list response.
type ModelEntry struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	OwnedBy string          `json:"owned_by"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ModelListResponse is the /v1/models response body.
type ModelListResponse struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// PullModelRequest is the /v1/models/pull request body.
type PullModelRequest struct {
	Model string `json:"model"`
}

// CreateKeyRequest is the admin key creation request body.
type CreateKeyRequest struct {
	Label             string  `json:"label"`
	OwnerEmail        *string `json:"owner_email,omitempty"`
	RateLimitPerMin   int     `json:"rate_limit_per_min,omitempty"`
	MonthlyTokenLimit int64   `json:"monthly_token_limit,omitempty"`
}

// CreateKeyResponse carries the plaintext key. It appears here once and is
// never retrievable again.
type CreateKeyResponse struct {
	ID                uuid.UUID `json:"id"`
	Key               string    `json:"key"`
	Label             string    `json:"label"`
	OwnerEmail        *string   `json:"owner_email"`
	RateLimitPerMin   int       `json:"rate_limit_per_min"`
	MonthlyTokenLimit int64     `json:"monthly_token_limit"`
	CreatedAt         time.Time `json:"created_at"`
	Message           string    `json:"message"`
}

// KeyListEntry is one credential in the admin list, digest only.
type KeyListEntry struct {
	ID                uuid.UUID  `json:"id"`
	Label             string     `json:"label"`
	OwnerEmail        *string    `json:"owner_email"`
	RateLimitPerMin   int        `json:"rate_limit_per_min"`
	MonthlyTokenLimit int64      `json:"monthly_token_limit"`
	TokensUsedMonth   int64      `json:"tokens_used_month"`
	MonthResetAt      time.Time  `json:"month_reset_at"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at"`
}

// UsageLogEntry is one recent request in the usage response.
type UsageLogEntry struct {
	Model       string    `json:"model"`
	Endpoint    string    `json:"endpoint"`
	TotalTokens int       `json:"total_tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// UsageResponse is the /v1/usage response body.
type UsageResponse struct {
	KeyID               uuid.UUID       `json:"key_id"`
	Label               string          `json:"label"`
	MonthlyTokenLimit   int64           `json:"monthly_token_limit"`
	TokensUsedThisMonth int64           `json:"tokens_used_this_month"`
	MonthResetsAt       time.Time       `json:"month_resets_at"`
	LastUsedAt          *time.Time      `json:"last_used_at"`
	RecentRequests      []UsageLogEntry `json:"recent_requests"`
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// TokenResponse is the admin token exchange response body.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt int64  `json:"expires_at"`
}

func newCompletionID() string {
	return fmt.Sprintf("chatcmpl-%s", uuid.New().String()[:8])
}

func newGenerationID() string {
	return fmt.Sprintf("gen-%s", uuid.New().String()[:8])
}
