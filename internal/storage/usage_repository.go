package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ollama_gateway/internal/models"
)

// UsageRepository handles usage_logs table operations
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create appends a usage record. Records are immutable once written.
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	query := `
		INSERT INTO usage_logs (
			id, api_key_id, model, prompt_tokens, completion_tokens,
			total_tokens, endpoint, response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		record.ID, record.APIKeyID, record.Model, record.PromptTokens,
		record.CompletionTokens, record.TotalTokens, record.Endpoint,
		record.ResponseTimeMS,
	).Scan(&record.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

// Recent returns the most recent usage records for a credential
func (r *UsageRepository) Recent(ctx context.Context, apiKeyID uuid.UUID, limit int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, api_key_id, model, prompt_tokens, completion_tokens,
		       total_tokens, endpoint, response_time_ms, created_at
		FROM usage_logs
		WHERE api_key_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var records []*models.UsageRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, apiKeyID, limit); err != nil {
		return nil, fmt.Errorf("failed to get usage records: %w", err)
	}
	return records, nil
}

// TotalTokens sums token counts for a credential in a time range
func (r *UsageRepository) TotalTokens(ctx context.Context, apiKeyID uuid.UUID, startTime, endTime time.Time) (prompt, completion, total int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM usage_logs
		WHERE api_key_id = $1
		  AND created_at >= $2
		  AND created_at < $3
	`

	err = r.db.conn.QueryRowxContext(ctx, query, apiKeyID, startTime, endTime).
		Scan(&prompt, &completion, &total)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to sum token usage: %w", err)
	}
	return prompt, completion, total, nil
}
