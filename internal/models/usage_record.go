package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one immutable audit row per proxied request. Records are
// appended after the backend call completes and never updated.
type UsageRecord struct {
	ID               uuid.UUID `db:"id" json:"id"`
	APIKeyID         uuid.UUID `db:"api_key_id" json:"api_key_id"`
	Model            string    `db:"model" json:"model"`
	PromptTokens     int       `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int       `db:"total_tokens" json:"total_tokens"`
	Endpoint         string    `db:"endpoint" json:"endpoint"`
	ResponseTimeMS   float64   `db:"response_time_ms" json:"response_time_ms"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
